package redisqueue

import "fmt"

// Key layout matches SPEC_FULL.md §6 / spec.md §6 exactly — external tools
// read these names directly.
func pendingKey(queue string) string    { return queue + ":pending" }
func processingKey(queue string) string { return queue + ":processing" }
func completedKey(queue string) string  { return queue + ":completed" }
func failedKey(queue string) string     { return queue + ":failed" }
func deadLetterKey(queue string) string { return queue + ":dead_letter" }
func taskKey(queue, id string) string   { return fmt.Sprintf("%s:task:%s", queue, id) }
func taskKeyPattern(queue string) string { return queue + ":task:*" }
