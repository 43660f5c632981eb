// Package voxa is the Voxa client SDK for live voice-agent conversations.
//
// A Session owns one websocket conversation with the agent service:
// microphone PCM streams up, JSON control frames and synthesized speech
// stream down. The session tracks who is speaking, schedules agent audio
// gap-free, disconnects after a configurable quiet period, and guarantees
// ordered, idempotent teardown even when connect, close, and capture race.
package voxa
