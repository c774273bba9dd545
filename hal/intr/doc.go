// Package intr turns hardware completion interrupts into wake-ups of the one
// task waiting for them.
//
// An interrupt handler only ever clears its status bit and raises a Gate. It
// never blocks and never touches state owned by the waiting task. All
// bookkeeping happens in the task after the wait returns, which establishes
// the happens-before edge between hardware completion and the task.
package intr
