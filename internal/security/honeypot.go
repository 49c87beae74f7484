package security

import "math/rand"

// HoneypotField is the fixed decoy input rendered on every form.  Humans
// never see it; naive bots fill it in.
const HoneypotField = "website_url"

// decoyNames are extra plausible field names for a second, randomised decoy.
var decoyNames = []string{"website", "url", "homepage", "company_url"}

// GenerateHoneypotName picks one of the secondary decoy names at random.
func GenerateHoneypotName() string {
	return decoyNames[rand.Intn(len(decoyNames))]
}

// HoneypotNames lists every field name that must arrive empty, the fixed
// decoy first.
func HoneypotNames() []string {
	return append([]string{HoneypotField}, decoyNames...)
}
