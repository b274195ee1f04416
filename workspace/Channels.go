package workspace

// Channel names recognized by the agents in this module. The
// environment drivers own the env/ channels; actors and critics own
// the rest.
const (
	// ObsChannel holds the batched observation produced by the
	// environment driver at each time step.
	ObsChannel = "env/env_obs"

	// RewardChannel holds the reward received on entering each time
	// step. The reward at a reset step is 0.
	RewardChannel = "env/reward"

	// DoneChannel is true for a batch slot whose episode has ended at
	// the time step, whether by termination or truncation.
	DoneChannel = "env/done"

	// TruncatedChannel is true for a batch slot whose episode was cut
	// by a time limit while still alive.
	TruncatedChannel = "env/truncated"

	// CumulatedRewardChannel holds the running sum of rewards for the
	// current episode of each batch slot. At an episode's final step it
	// carries the episode return; it restarts at 0 on the reset step.
	CumulatedRewardChannel = "env/cumulated_reward"

	// ActionChannel holds the action selected at each time step.
	ActionChannel = "action"

	// ActionLogProbsChannel holds the log-probability of the selected
	// action under the policy that selected it.
	ActionLogProbsChannel = "action_logprobs"

	// EntropyChannel holds the entropy of the policy distribution at
	// each time step.
	EntropyChannel = "entropy"

	// VValueChannel holds state-value estimates.
	VValueChannel = "v_value"

	// QValuesChannel holds per-action value estimates.
	QValuesChannel = "q_values"

	// LogProbPredictChannel holds the log-probability of an already
	// stored action re-scored under another (or updated) policy.
	LogProbPredictChannel = "logprob_predict"
)
