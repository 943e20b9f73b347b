// Package subscription keeps the set of topic filters mqttlog wants to
// receive and makes the broker session match it.
//
// The Registry is the authoritative desired set. The broker session is
// clean, so every (re)connect starts with no subscriptions; the Registry's
// Restore method is wired to the transport's connection-established event
// and re-issues exactly the registered filters.
//
//	reg := subscription.NewRegistry(client)
//	client.SetOnConnect(func() { _ = reg.Restore(ctx) })
//	err := reg.Subscribe(ctx, "rye/test", 1)
package subscription
