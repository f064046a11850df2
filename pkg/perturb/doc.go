// Package perturb crafts bounded adversarial perturbations that move a
// voice recording away from its speaker embedding.
//
// # Algorithm
//
// Given a waveform x and a differentiable embedding [Oracle] f, the
// optimizer searches for a perturbation δ with |δ[i]| ≤ ε that minimizes
//
//	loss(δ) = -cos(f(x), f(clamp(x + δ)))
//
// by projected gradient descent:
//
//  1. δ starts as small Gaussian noise (NoiseScale), projected into the budget
//  2. f(x) is computed once and held fixed
//  3. each step: clamp the candidate, embed it, back-propagate the loss
//     through the oracle, apply one Adam update to δ, project δ back into
//     [-ε, ε]
//  4. the output is clamp(x + δ)
//
// Two projections are involved and they are not interchangeable: [Project]
// enforces the perturbation budget after every update, [Combine] clamps
// x + δ to the legal sample range. A δ inside the budget can still push a
// near-full-scale sample out of range, so the final clamp always runs.
//
// # Failures
//
// Every failure is terminal for the run and no partial waveform is
// returned:
//
//   - [ErrInvalidConfiguration]: rejected before the oracle is called
//   - [ErrEmbeddingFailure]: the oracle could not embed or differentiate
//   - [ErrNumericDivergence]: a loss, embedding or gradient went non-finite
//
// Runs are deterministic for a fixed Config.Seed and a deterministic
// oracle. Independent runs share no state and may execute concurrently.
package perturb
