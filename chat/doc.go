// Package chat contains the aggregation engine: chat sources, the per-backend
// dispatch loop and the outbound queues.
//
// Each registered Source gets one Loop and one Outbox. A loop polls its
// source, enriches chat events with resolved badges (and a random color when
// the author has none), emits them to the configured sink and then drains the
// outbox, sending each queued message exactly once.
//
// Sources:
//   - EventSubSource: Twitch EventSub over WebSocket, drained on a fixed tick.
//   - IRCSource: Twitch IRC through go-twitch-irc, drained on a fixed tick.
//   - YouTubeSource: YouTube live chat pagination, paced by the interval the
//     server suggests.
//
// Engine is the application context that owns the loops, their outboxes and
// the badge resolver.
package chat
