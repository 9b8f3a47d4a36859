// Package credentials resolves the EPrints user name and password for a run.
//
// Values given in configuration or on the command line win. Missing values
// are looked up in the OS keyring, then requested at the terminal; whatever
// the user types is saved back to the keyring for the next run. Without a
// terminal the run proceeds with what it has, which for public servers is
// nothing at all.
package credentials
