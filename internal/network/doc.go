// Package network performs HTTP retrieval against EPrints servers.
//
// It is layered the same way failures are reasoned about:
//   - Transport issues exactly one request with a fixed timeout and
//     certificate verification disabled, and never retries.
//   - ClassifyStatus and ClassifyFault map status codes and transport faults
//     onto the services error markers.
//   - Client.Fetch and Client.Download add the bounded retry loop: connection
//     resets (and, for downloads, 202 Accepted) are retried up to
//     RetryAttempts times, everything else is terminal.
//
// # Usage
//
//	client := network.NewClient(network.Options{Timeout: 10 * time.Second, RetryAttempts: 5})
//	body, status, err := client.Fetch(ctx, recordURL, network.ModeFetch)
//	n, err := client.Download(ctx, documentURL, "/out/10/paper.pdf")
package network
