package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// 服务指标名
const (
	MetricHTTPRequests      = "http_requests_total"
	MetricPredictions       = "predictions_total"
	MetricInferenceErrors   = "inference_errors_total"
	MetricCacheHits         = "prediction_cache_hits_total"
	MetricArtifactChanges   = "artifact_changes_total"
	MetricPredictionLatency = "prediction_latency_ms"
	MetricHeapAlloc         = "memory_heap_alloc"
	MetricGoroutines        = "system_goroutines"
)

// LatencyBuckets 推理耗时分桶（毫秒）
var LatencyBuckets = []float64{0.1, 0.5, 1, 5, 10, 50, 100}

const maxHistory = 1000

// Metric 指标
type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Help      string                 `json:"help,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	metrics     map[string][]*Metric
	counters    map[string]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		counters:  make(map[string]*Metric),
		startTime: time.Now(),
	}
}

// Run 周期性收集运行时指标，直到ctx结束
func (mc *MetricsCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	mc.collectRuntimeMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.collectRuntimeMetrics()
		}
	}
}

// RecordMetric 记录指标
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	mc.metrics[metric.Name] = append(mc.metrics[metric.Name], metric)

	// 限制历史大小
	if len(mc.metrics[metric.Name]) > maxHistory {
		mc.metrics[metric.Name] = mc.metrics[metric.Name][100:]
	}
}

// IncrCounter 增加计数器，同名同标签的值累加
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	key := seriesKey(name, labels)
	counter, ok := mc.counters[key]
	if !ok {
		counter = &Metric{
			Name:   name,
			Type:   MetricTypeCounter,
			Labels: copyLabels(labels),
		}
		mc.counters[key] = counter
	}
	counter.Value += value
	counter.Timestamp = time.Now()
}

// Counter 返回计数器当前值
func (mc *MetricsCollector) Counter(name string, labels map[string]string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	if counter, ok := mc.counters[seriesKey(name, labels)]; ok {
		return counter.Value
	}
	return 0
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeGauge,
		Value:  value,
		Labels: labels,
	})
}

// RecordHistogram 记录直方图样本
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string, buckets []float64) {
	mc.RecordMetric(&Metric{
		Name:   name,
		Type:   MetricTypeHistogram,
		Value:  value,
		Labels: labels,
		Metadata: map[string]interface{}{
			"buckets": buckets,
		},
	})
}

// GetMetric 获取指标历史
func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}

	// 返回副本
	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

// GetAllMetrics 获取所有指标
func (mc *MetricsCollector) GetAllMetrics() map[string][]*Metric {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string][]*Metric)
	for name, metrics := range mc.metrics {
		metricCopy := make([]*Metric, len(metrics))
		for i, m := range metrics {
			m := *m
			metricCopy[i] = &m
		}
		result[name] = metricCopy
	}
	for _, counter := range mc.counters {
		c := *counter
		result[c.Name] = append(result[c.Name], &c)
	}
	return result
}

// GetMetricSummary 获取指标摘要
func (mc *MetricsCollector) GetMetricSummary(name string) (map[string]interface{}, error) {
	metrics, err := mc.GetMetric(name)
	if err != nil {
		return nil, err
	}

	if len(metrics) == 0 {
		return map[string]interface{}{
			"count": 0,
		}, nil
	}

	minValue := metrics[0].Value
	maxValue := metrics[0].Value
	sum := 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < minValue {
			minValue = m.Value
		}
		if m.Value > maxValue {
			maxValue = m.Value
		}
	}

	return map[string]interface{}{
		"name":      name,
		"count":     len(metrics),
		"latest":    metrics[len(metrics)-1].Value,
		"min":       minValue,
		"max":       maxValue,
		"average":   sum / float64(len(metrics)),
		"timestamp": metrics[len(metrics)-1].Timestamp,
	}, nil
}

// Snapshot 汇总计数器与采样指标，供/api/metrics使用
func (mc *MetricsCollector) Snapshot() map[string]interface{} {
	mc.metricsLock.RLock()
	counters := make([]Metric, 0, len(mc.counters))
	for _, counter := range mc.counters {
		counters = append(counters, *counter)
	}
	names := make([]string, 0, len(mc.metrics))
	for name := range mc.metrics {
		names = append(names, name)
	}
	mc.metricsLock.RUnlock()

	sort.Slice(counters, func(i, j int) bool {
		return seriesKey(counters[i].Name, counters[i].Labels) < seriesKey(counters[j].Name, counters[j].Labels)
	})
	sort.Strings(names)

	summaries := make(map[string]interface{}, len(names))
	for _, name := range names {
		if summary, err := mc.GetMetricSummary(name); err == nil {
			summaries[name] = summary
		}
	}

	return map[string]interface{}{
		"uptime":   mc.GetUptime().String(),
		"counters": counters,
		"samples":  summaries,
	}
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder

	all := mc.GetAllMetrics()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		metricList := all[name]
		if len(metricList) == 0 {
			continue
		}

		latest := metricList[len(metricList)-1]
		help := latest.Help
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		metricType := latest.Type
		if metricType == MetricTypeHistogram {
			// 只导出最新样本
			metricType = MetricTypeGauge
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, metricType)

		if latest.Type == MetricTypeCounter {
			sort.Slice(metricList, func(i, j int) bool {
				return formatLabels(metricList[i].Labels) < formatLabels(metricList[j].Labels)
			})
			for _, m := range metricList {
				fmt.Fprintf(&b, "%s%s %g\n", name, formatLabels(m.Labels), m.Value)
			}
			continue
		}
		fmt.Fprintf(&b, "%s%s %g\n", name, formatLabels(latest.Labels), latest.Value)
	}

	return b.String()
}

// ExportJSON 导出JSON格式
func (mc *MetricsCollector) ExportJSON() (string, error) {
	data, err := json.MarshalIndent(mc.Snapshot(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"heap_inuse": m.HeapInuse,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

// collectRuntimeMetrics 收集内存与协程指标
func (mc *MetricsCollector) collectRuntimeMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.RecordMetric(&Metric{
		Name:  MetricHeapAlloc,
		Type:  MetricTypeGauge,
		Value: float64(m.HeapAlloc),
		Help:  "Memory heap allocated in bytes",
	})
	mc.RecordMetric(&Metric{
		Name:  MetricGoroutines,
		Type:  MetricTypeGauge,
		Value: float64(runtime.NumGoroutine()),
		Help:  "Number of goroutines",
	})
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s="%s"`, k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
