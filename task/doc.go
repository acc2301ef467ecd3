// Package task defines the task entity, the claim and release models, and the
// persistence contract implemented by the store backends.
package task
