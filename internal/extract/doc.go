// Package extract defines the records, requests and collaborator interfaces
// shared by the discovery, batch, normalize and pipeline packages.
package extract
