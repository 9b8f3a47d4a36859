// Command eprints2bags retrieves records and their documents from an
// EPrints server and packages each record as a verified BagIt archive.
//
// Running the root command performs a retrieval; subcommands check
// readiness (check), show the run journal (history), verify archives
// (verify), and manage configuration (config init|validate).
package main
