package config

import "github.com/spf13/viper"

type Features struct {
	GoogleEnabled        bool
	MFAEnforced          bool
	TestEndpointsEnabled bool
	UIEnabled            bool
}

// loadFeatures reads the toggles from v. Google and MFA stay on unless set to "false";
// the test endpoints and UI are opt-in.
func loadFeatures(v *viper.Viper) Features {
	return Features{
		GoogleEnabled:        v.GetString("google_enabled") != "false",
		MFAEnforced:          v.GetString("mfa_enforced") != "false",
		TestEndpointsEnabled: v.GetString("test_endpoints_enabled") == "true",
		UIEnabled:            v.GetString("ui_enabled") == "true",
	}
}
