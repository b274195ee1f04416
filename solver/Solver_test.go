package solver

import "testing"

func TestCreate(t *testing.T) {
	for _, solverType := range []Type{Adam, Vanilla, RMSProp} {
		config := Config{Type: solverType, StepSize: 1e-3}
		if _, err := config.Create(32); err != nil {
			t.Errorf("could not create %v solver: %v", solverType, err)
		}
	}
}

func TestCreateRejectsBadConfigs(t *testing.T) {
	if _, err := (Config{Type: Adam}).Create(32); err == nil {
		t.Error("expected an error with a zero step size")
	}
	config := Config{Type: "Newton", StepSize: 1e-3}
	if _, err := config.Create(32); err == nil {
		t.Error("expected an error with an unknown solver type")
	}
}

func TestWithDefaults(t *testing.T) {
	config := Config{Type: Adam, StepSize: 1e-3}.withDefaults()
	if config.Epsilon != 1e-8 || config.Beta1 != 0.9 ||
		config.Beta2 != 0.999 || config.Rho != 0.99 {
		t.Errorf("unexpected defaults: %+v", config)
	}

	config = Config{Type: Adam, StepSize: 1e-3, Beta1: 0.5}.withDefaults()
	if config.Beta1 != 0.5 {
		t.Errorf("explicit beta1 overwritten: %+v", config)
	}
}
