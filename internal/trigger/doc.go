// Package trigger implements the wake sources that start and stop cycles.
//
// A Trigger is a named, creator-scoped event source built from a URI:
//
//	urn:epcglobal:ale:trigger:rtc:<period>.<offset>[.<timezone>]
//	urn:havis:ale:trigger:http:<name>
//	urn:havis:ale:trigger:port:<reader>.<in|out>[.<id>][.<state>]
//
// Each variant lives in a registry owned by a Services value:
//
//   - RTCService runs one scheduler goroutine for all periodic triggers,
//     started on the first Add and stopped when the last trigger is removed.
//   - PortService locks a reader and observes its pins while at least one
//     trigger targets it.
//   - HTTPService groups triggers by name for external pokes.
//
// IDENTITY: two triggers are equal (Key) when creator id and URI match.
// Equal triggers firing in the same dispatch invoke their callback once.
// Registries remove entries by instance, never by Key, so legitimately
// duplicated definitions each keep their own registration.
package trigger
