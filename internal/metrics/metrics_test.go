package metrics

import "testing"

func TestDisabledConstructorsReturnNil(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized by another test in this run")
	}
	if NewCacheMetrics() != nil {
		t.Fatal("expected nil CacheMetrics when disabled")
	}
	if NewDispatchMetrics() != nil {
		t.Fatal("expected nil DispatchMetrics when disabled")
	}
}

func TestInitRegistryEnablesConstructors(t *testing.T) {
	InitRegistry()
	if !IsEnabled() {
		t.Fatal("expected metrics enabled after InitRegistry")
	}
	if GetRegistry() == nil {
		t.Fatal("expected non-nil registry")
	}

	cache := NewCacheMetrics()
	if cache == nil {
		t.Fatal("expected non-nil CacheMetrics once enabled")
	}
	cache.ObserveGet("default", true, 0)
	cache.ObserveSet("default", 128, 0)
	cache.RecordSize("default", 4096)
	cache.RecordEviction("default", "ttl")

	dispatch := NewDispatchMetrics()
	dispatch.ObserveRequest("nsd", "GET", 200, 0)

	reactor := NewReactorMetrics()
	reactor.RecordTaskSpawned("io")
	reactor.RecordTaskFinished("io", "ok")
	reactor.RecordQueueDepth("io", 3)

	scheduler := NewSchedulerMetrics()
	scheduler.RecordFiring("sweep", 0)
}
