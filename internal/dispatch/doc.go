// Package dispatch turns NATS JetStream messages into queued analysis jobs.
//
// Each message on the configured subject carries a JSON body such as
//
//	{"video_id": "lecture-42", "path": "/srv/videos/lecture-42.mp4", "motion": true, "transcript": false}
//
// and is acknowledged once the job is persisted. Store failures are
// negatively acknowledged so JetStream redelivers them; malformed payloads are
// terminated because redelivery can never succeed.
package dispatch
