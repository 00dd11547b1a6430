// Package logx configures the bot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//
// CRITICAL is accepted as a level name and maps to zerolog's fatal level
// without exiting the process.
package logx
