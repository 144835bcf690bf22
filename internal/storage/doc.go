// Package storage provides the optional persistence layer used by the bot.
//
// It stores:
//   - Small JSON state blobs by key (rotation settings, publish state)
//   - An append-only audit trail (operator actions and rotation cycles)
package storage
