// Package groups is Huddle's membership collaborator.
//
// A group owns one room and each of its channels owns one more. The realtime
// layer reads memberships from here to decide which rooms a connection joins;
// this package never touches connections itself and reports changes through
// a Notifier instead.
package groups
