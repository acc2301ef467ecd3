// Package job defines the job entity, its request and filter models, and the
// persistence contract implemented by the store backends.
package job
