package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiURL = "https://eprints.example.edu/rest"

type memoryKeyring struct {
	entries map[string]string
	getErr  error
	sets    int
}

func newMemoryKeyring() *memoryKeyring {
	return &memoryKeyring{entries: make(map[string]string)}
}

func (k *memoryKeyring) Get(service, account string) (string, error) {
	if k.getErr != nil {
		return "", k.getErr
	}
	secret, ok := k.entries[service+"/"+account]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (k *memoryKeyring) Set(service, account, secret string) error {
	k.sets++
	k.entries[service+"/"+account] = secret
	return nil
}

type scriptedPrompter struct {
	user, password string
	err            error
	calls          int
	offered        string
}

func (p *scriptedPrompter) Prompt(user string) (string, string, error) {
	p.calls++
	p.offered = user
	if p.err != nil {
		return "", "", p.err
	}
	if p.user == "" {
		return user, p.password, nil
	}
	return p.user, p.password, nil
}

func TestResolveKeepsGivenCredentials(t *testing.T) {
	kr := newMemoryKeyring()
	prompt := &scriptedPrompter{}
	r := NewResolver(Options{UseKeyring: true, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "archivist", "secret")
	assert.Equal(t, "archivist", user)
	assert.Equal(t, "secret", password)
	assert.Zero(t, prompt.calls)
	assert.Zero(t, kr.sets)
}

func TestResolveReadsKeyring(t *testing.T) {
	kr := newMemoryKeyring()
	kr.entries[Service+"/eprints.example.edu"] = encodeSecret("archivist", "stored")
	prompt := &scriptedPrompter{}
	r := NewResolver(Options{UseKeyring: true, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "", "")
	assert.Equal(t, "archivist", user)
	assert.Equal(t, "stored", password)
	assert.Zero(t, prompt.calls)
}

func TestResolvePromptsAndSaves(t *testing.T) {
	kr := newMemoryKeyring()
	prompt := &scriptedPrompter{user: "archivist", password: "typed"}
	r := NewResolver(Options{UseKeyring: true, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "", "")
	assert.Equal(t, "archivist", user)
	assert.Equal(t, "typed", password)
	assert.Equal(t, 1, prompt.calls)
	assert.Equal(t, encodeSecret("archivist", "typed"), kr.entries[Service+"/eprints.example.edu"])
}

func TestResolveResetIgnoresStoredEntry(t *testing.T) {
	kr := newMemoryKeyring()
	kr.entries[Service+"/eprints.example.edu"] = encodeSecret("archivist", "wrong")
	prompt := &scriptedPrompter{password: "right"}
	r := NewResolver(Options{UseKeyring: true, Reset: true, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "archivist", "")
	assert.Equal(t, "archivist", user)
	assert.Equal(t, "right", password)
	assert.Equal(t, "archivist", prompt.offered)
	assert.Equal(t, encodeSecret("archivist", "right"), kr.entries[Service+"/eprints.example.edu"])
}

func TestResolveWithoutKeyringNeverTouchesIt(t *testing.T) {
	kr := newMemoryKeyring()
	kr.entries[Service+"/eprints.example.edu"] = encodeSecret("archivist", "stored")
	prompt := &scriptedPrompter{user: "other", password: "typed"}
	r := NewResolver(Options{UseKeyring: false, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "", "")
	assert.Equal(t, "other", user)
	assert.Equal(t, "typed", password)
	assert.Zero(t, kr.sets)
}

func TestResolveWithoutTerminalContinuesAnonymously(t *testing.T) {
	prompt := &scriptedPrompter{err: ErrNoTerminal}
	r := NewResolver(Options{UseKeyring: true, Keyring: newMemoryKeyring(), Prompter: prompt})

	user, password := r.Resolve(apiURL, "", "")
	assert.Empty(t, user)
	assert.Empty(t, password)
	assert.Equal(t, 1, prompt.calls)
}

func TestResolveSurvivesKeyringFailure(t *testing.T) {
	kr := newMemoryKeyring()
	kr.getErr = errors.New("no secret service on the session bus")
	prompt := &scriptedPrompter{user: "archivist", password: "typed"}
	r := NewResolver(Options{UseKeyring: true, Keyring: kr, Prompter: prompt})

	user, password := r.Resolve(apiURL, "", "")
	assert.Equal(t, "archivist", user)
	assert.Equal(t, "typed", password)
}

func TestSecretEncoding(t *testing.T) {
	user, password := decodeSecret(encodeSecret("archivist", "pa:ss\nword"))
	require.Equal(t, "archivist", user)
	assert.Equal(t, "pa:ss\nword", password)
}
