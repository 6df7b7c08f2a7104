// Package directory is the client for the hub's peer registry. Listing
// fails soft (reuse the last snapshot) so a flaky hub doesn't empty the
// mesh; membership point queries fail closed (unreachable hub means
// "not registered") so unverifiable peers are dropped rather than trusted.
package directory
