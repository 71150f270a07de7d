// Package ir provides the foundational value and identity types for txgraph.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Property values are IRValue: null, string, int, bool, array or object.
//     No floats, so stored payloads stay byte-stable.
//   - EntityID and EndPointID are comparable and usable as map keys.
//   - The zero EntityID is the null reference.
//   - All JSON tags use snake_case.
package ir
