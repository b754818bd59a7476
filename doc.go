// Package jojodiff computes and applies binary deltas between two byte
// streams.
//
// A Differ walks a source and a destination ByteSource in lockstep,
// emitting a compact patch (via Encoder) whenever the two diverge: a
// rolling hash over the destination bytes probes a position index built
// from the source to relocate the point where the streams realign, and
// a bounded MatchTable arbitrates between several candidate
// realignment points when more than one hash hit is live at once.
// Decode/Apply reverse the process, replaying a patch against the
// original source to reconstruct the destination.
package jojodiff
