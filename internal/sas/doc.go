// Package sas is a client for the SAS Viya compute REST API.
//
// Structure:
//   - types.go:  Job, Link, Log as returned by the server
//   - client.go: job submission, state polling, log fetching
//   - errors.go: client errors
//
// A job is started by path: the client finds the compute context, opens a
// session, reads the job definition from the folders service, submits its
// code and polls the job state at a fixed interval until it settles.
package sas
