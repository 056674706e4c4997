package digest

import "fmt"

// EndorseNotifyKey names the flag set when a student is recommended for the
// skill test.
func EndorseNotifyKey(courseID int64) string {
	return fmt.Sprintf("booking_%d_endorsenotify", courseID)
}

// EndorserKey names the preference holding the recommending instructor's id.
func EndorserKey(courseID int64) string {
	return fmt.Sprintf("booking_%d_endorser", courseID)
}

// PostingNotifyKey names the comma-separated list of slot ids posted since the
// last digest.
func PostingNotifyKey(courseID int64) string {
	return fmt.Sprintf("booking_%d_postingnotify", courseID)
}

// flagSet reads a boolean preference. Empty and "0" are unset.
func flagSet(v string) bool {
	return v != "" && v != "0"
}
