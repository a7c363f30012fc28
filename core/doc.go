// Package core contains the wallet provisioning contracts and orchestration:
// status code translation, active wallet resolution, token status queries,
// push provisioning and the single-settlement Promise every operation returns.
// Adapters depend on this package; core must not depend on any wallet
// transport or storage adapter.
package core
