// Package pipeline provides a framework for executing archive run steps
// in sequence.
//
// The pipeline pattern is used to take a site through the stages of a
// run: sitemap location, sitemap resolution, path planning, and page
// archiving. Each stage is implemented as a Step that receives the
// shared run report and records its results there.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running runs
//
// Page archiving itself fans out through a Pool of workers, each owning
// one engine session, with concurrency controlled by errgroup.
package pipeline
