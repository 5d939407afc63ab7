// Package coupling aligns the bench lens to a photonic chip.
//
// A run makes two one-dimensional searches. The Z sweep steps the lens
// through focus and keeps the position with the smallest smoothed spot. The
// X sweep then steps across the chip at that focus and parks the lens on the
// near side of the sharpest brightness transition, the chip edge. Each step
// moves the lens, waits for it to settle, reads one frame and scores it.
//
// The Controller owns the hardware session for the whole run and always
// releases it, whether the run completes, fails or is cancelled through its
// context.
package coupling
