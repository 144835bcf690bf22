// Package tgui provides small Telegram HTML helpers:
//   - Escaping and inline formatting for ParseMode="HTML"
//   - A reply builder (title, key/value rows, code lines) with safe defaults
//
// Values of type H are treated as already-escaped everywhere.
package tgui
