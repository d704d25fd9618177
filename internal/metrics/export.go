package metrics

// Helpers over the global Manager, meant for dot import.

// MetricStartAuto begins timing with automatic function detection.
// Typical use: defer MetricStartAuto("tabs")()
func MetricStartAuto(topic string) func() {
	key := GetInstance().StartTiming(topic, GetCaller())
	return func() {
		GetInstance().EndTiming(key)
	}
}

// MetricHit records a cache hit
func MetricHit(topic, function string) {
	GetInstance().RecordHit(topic, function)
}

// MetricMiss records a cache miss
func MetricMiss(topic, function string) {
	GetInstance().RecordMiss(topic, function)
}

// MetricInc increments a counter by 1
func MetricInc(topic, function string) {
	GetInstance().AddCounter(topic, function, 1)
}

// MetricAdd adds a value to a counter
func MetricAdd(topic, function string, delta int64) {
	GetInstance().AddCounter(topic, function, delta)
}

// MetricSuccess records a successful operation
func MetricSuccess(topic, operation string) {
	GetInstance().RecordSuccess(topic, operation)
}

// MetricFailWithReason records a failed operation with a specific reason
func MetricFailWithReason(topic, operation, reason string) {
	GetInstance().RecordFailure(topic, operation, reason)
}

// MetricResult records err as a success (nil) or a failure with its message.
func MetricResult(topic, operation string, err error) {
	if err == nil {
		MetricSuccess(topic, operation)
		return
	}
	MetricFailWithReason(topic, operation, err.Error())
}
