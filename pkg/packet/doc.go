// Package packet turns a raw command packet into an Intent.
//
// Packets come from phone apps and small controllers that do not agree on a
// format. The parser runs two passes:
//
//  1. A structured pass decodes JSON-like input (quoted or bare keys) as a
//     YAML flow document and walks every mapping looking for known keys.
//  2. A fallback pass normalizes the text and scans it for the same keys
//     case-insensitively, tolerating fragments and wrapper objects such as
//     {{Fan1},{"Speed": 100}}.
//
// Precedence across the recognized keys is fixed: an auth key wins, then
// Wi-Fi credentials, then control updates. Parsing has no side effects.
package packet
