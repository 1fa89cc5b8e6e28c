package gridtune

// Configuration-space enumeration. The full Cartesian product of the
// parameter value lists is generated in declaration order and filtered in a
// single pass: user constraints first, then the launch shape and the
// local-memory demand against the device limits. The order of the surviving
// set is the Cartesian-product order, which keeps full search deterministic
// and random seeds reproducible.

// setConfigurations materializes the valid configuration set for the
// kernel. Calling it again regenerates the set from scratch.
func (k *kernelSpec) setConfigurations() error {
	k.configurations = nil
	config := make(Configuration, len(k.parameters))
	return k.populateConfigurations(0, config)
}

// populateConfigurations recurses over the parameters in declaration order.
// Each recursion level fixes one parameter; at the deepest level the
// completed candidate is checked and, if valid, appended.
func (k *kernelSpec) populateConfigurations(index int, config Configuration) error {
	if index == len(k.parameters) {
		valid, err := k.validConfiguration(config)
		if err != nil {
			return err
		}
		if valid {
			k.configurations = append(k.configurations, append(Configuration(nil), config...))
		}
		return nil
	}
	parameter := k.parameters[index]
	for _, value := range parameter.Values {
		config[index] = Setting{Name: parameter.Name, Value: value}
		if err := k.populateConfigurations(index+1, config); err != nil {
			return err
		}
	}
	return nil
}

// validConfiguration runs the four admissibility passes on one candidate:
// user constraints, launch shape computation, device thread limits, and the
// local-memory demand. A local-memory predicate whose parameters cannot all
// be bound is an error, not a skipped candidate.
func (k *kernelSpec) validConfiguration(config Configuration) (bool, error) {
	for _, constraint := range k.constraints {
		values := make([]int64, len(constraint.parameters))
		for i, name := range constraint.parameters {
			value, ok := config.Lookup(name)
			if !ok {
				return false, NewConfigurationError("ValidConfiguration",
					"constraint parameter "+name+" not bound in configuration")
			}
			values[i] = value
		}
		if !constraint.validIf(values) {
			return false, nil
		}
	}

	if err := k.computeRanges(config); err != nil {
		return false, err
	}
	if !k.dev.IsThreadConfigValid(k.local) {
		return false, nil
	}

	values := make([]int64, 0, len(k.localMemory.parameters))
	for _, name := range k.localMemory.parameters {
		if value, ok := config.Lookup(name); ok {
			values = append(values, value)
		}
	}
	if len(values) != len(k.localMemory.parameters) {
		return false, NewConfigurationError("ValidConfiguration",
			"invalid settings for the local memory usage constraint")
	}
	if !k.dev.IsLocalMemoryValid(k.localMemory.amount(values)) {
		return false, nil
	}

	return true, nil
}
