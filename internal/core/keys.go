package core

// ReputationKeyPrefix prefixes every reputation counter key
const ReputationKeyPrefix = "sagrey_"

const greylistKeySeparator = "src"

// GreylistKey identifies a sender/source pair for the duration of a greylist window.
// The fields are concatenated as they are, without any normalization.
func GreylistKey(s *SignalSet) string {
	return s.SenderAddress + greylistKeySeparator + s.SourceHostname
}

// ReputationKey returns the counter key for a single source IP.
// The address is used literally and is not truncated to its network.
func ReputationKey(hostIP string) string {
	return ReputationKeyPrefix + hostIP
}
