// Package subscription implements the Subscription Registry.
//
// The registry tracks desired versus confirmed channel subscriptions.
// Desired state is what the caller asked for and is the source of truth:
// after every reconnect the registry replays all desired subscriptions so
// that a reconnect is invisible to the caller beyond a brief data gap.
// Confirmed state only tracks whether the server has acked a subscribe,
// i.e. whether pushes are expected to be flowing already.
package subscription
