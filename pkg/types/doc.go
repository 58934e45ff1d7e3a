// Package types defines the vehicle record shared by the server and the
// reporting agent. A Record is an open JSON object: the server only interprets
// the id, name and lastUpdate fields and passes everything else through.
package types
