// Command costsim projects per-call COGS and monthly margin for the voice
// platform with a Monte Carlo simulation over realistic call distributions.
// All customer-facing figures are in minutes; token and character counts are
// internal cost components only.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
)

type providerRates struct {
	InboundPerMin   float64
	OutboundPerMin  float64
	STTPerSecond    float64
	TTSPerCharacter float64
	InputPerToken   float64
	OutputPerToken  float64
}

// Rates as of Feb 2026.
var (
	cloudRates = providerRates{
		InboundPerMin:   0.0085,     // twilio
		OutboundPerMin:  0.014,      // twilio
		STTPerSecond:    0.0002,     // deepgram nova-2
		TTSPerCharacter: 0.00003,    // elevenlabs turbo v2.5
		InputPerToken:   0.00000015, // gpt-4o-mini $0.15/1M
		OutputPerToken:  0.0000006,  // gpt-4o-mini $0.60/1M
	}
	selfHostedRates = providerRates{
		InboundPerMin:   0.0085,
		OutboundPerMin:  0.014,
		STTPerSecond:    0.00005,
		TTSPerCharacter: 0.000005,
		InputPerToken:   0.00000005,
		OutputPerToken:  0.0000002,
	}
)

type plan struct {
	Fee         float64
	IncludedMin float64
	OverageRate float64
	MaxAgents   int
}

var plans = map[string]plan{
	"free_trial": {Fee: 0, IncludedMin: 100, OverageRate: 0, MaxAgents: 2},
	"starter":    {Fee: 49, IncludedMin: 500, OverageRate: 0.12, MaxAgents: 5},
	"pro":        {Fee: 149, IncludedMin: 2000, OverageRate: 0.08, MaxAgents: 20},
	"enterprise": {Fee: 499, IncludedMin: 10000, OverageRate: 0.05, MaxAgents: 100},
}

type callTypeParams struct {
	name       string
	prob       float64
	durMu      float64
	durSigma   float64
	turnsMu    float64
	turnsSigma float64
}

var callTypes = []callTypeParams{
	{name: "simple_faq", prob: 0.30, durMu: 4.6, durSigma: 0.3, turnsMu: 1.5, turnsSigma: 0.5},
	{name: "appointment", prob: 0.25, durMu: 5.0, durSigma: 0.4, turnsMu: 3.5, turnsSigma: 1.0},
	{name: "complaint", prob: 0.15, durMu: 5.4, durSigma: 0.5, turnsMu: 5.0, turnsSigma: 1.5},
	{name: "order_status", prob: 0.15, durMu: 4.5, durSigma: 0.3, turnsMu: 2.5, turnsSigma: 0.8},
	{name: "escalation", prob: 0.10, durMu: 5.1, durSigma: 0.5, turnsMu: 2.5, turnsSigma: 1.0},
	{name: "complex", prob: 0.05, durMu: 5.8, durSigma: 0.4, turnsMu: 8.0, turnsSigma: 2.0},
}

const (
	talkRatioAlpha   = 4.0
	talkRatioBeta    = 2.0
	sttRatioMean     = 0.50
	sttRatioStd      = 0.10
	ttsCharsPerSec   = 15.0
	llmInputPerTurn  = 350
	llmOutputPerTurn = 120
	systemPromptToks = 500
	maxDurationSec   = 900
	outboundShare    = 0.15
)

type callResult struct {
	CallType        string  `json:"call_type"`
	DurationSec     float64 `json:"duration_sec"`
	DurationMin     float64 `json:"duration_min"`
	STTSec          float64 `json:"stt_sec"`
	TTSChars        int     `json:"tts_chars"`
	LLMInputTokens  int     `json:"llm_input_tokens"`
	LLMOutputTokens int     `json:"llm_output_tokens"`
	COGSTelephony   float64 `json:"cogs_telephony"`
	COGSSTT         float64 `json:"cogs_stt"`
	COGSTTS         float64 `json:"cogs_tts"`
	COGSLLM         float64 `json:"cogs_llm"`
	COGSTotal       float64 `json:"cogs_total"`
	COGSPerMin      float64 `json:"cogs_per_min"`
}

type monthlyProjection struct {
	Plan            string  `json:"plan"`
	MonthlyCalls    int     `json:"monthly_calls"`
	TotalMinutes    float64 `json:"total_minutes"`
	IncludedMinutes float64 `json:"included_minutes"`
	OverageMinutes  float64 `json:"overage_minutes"`
	SubscriptionFee float64 `json:"subscription_fee"`
	OverageRevenue  float64 `json:"overage_revenue"`
	TotalRevenue    float64 `json:"total_revenue"`
	TotalCOGS       float64 `json:"total_cogs"`
	GrossMargin     float64 `json:"gross_margin"`
	MarginPct       float64 `json:"margin_pct"`
	COGSPerCall     float64 `json:"cogs_per_call"`
	COGSPerMin      float64 `json:"cogs_per_min"`
}

type breakEven struct {
	Fee                   float64 `json:"fee"`
	RevenuePerIncludedMin float64 `json:"revenue_per_included_min"`
	COGSPerMin            float64 `json:"cogs_per_min"`
	NetPerMin             float64 `json:"net_per_min"`
	MarginOnIncluded      float64 `json:"margin_on_included"`
	OverageMargin         float64 `json:"overage_margin"`
}

type distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Stdev  float64 `json:"stdev,omitempty"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25,omitempty"`
	P50    float64 `json:"p50,omitempty"`
	P75    float64 `json:"p75,omitempty"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99,omitempty"`
	Min    float64 `json:"min,omitempty"`
	Max    float64 `json:"max,omitempty"`
}

type report struct {
	Iterations        int                  `json:"iterations"`
	SelfHosted        bool                 `json:"self_hosted"`
	COGSPerCall       distribution         `json:"cogs_per_call"`
	COGSPerMinute     distribution         `json:"cogs_per_minute"`
	DurationMeanMin   float64              `json:"duration_mean_min"`
	DurationMedianMin float64              `json:"duration_median_min"`
	COGSComposition   map[string]float64   `json:"cogs_composition"`
	CallTypeDist      map[string]float64   `json:"call_type_distribution"`
	Projections       []monthlyProjection  `json:"monthly_projections"`
	BreakEven         map[string]breakEven `json:"breakeven_analysis"`
}

func main() {
	iterations := flag.Int("iterations", 10000, "number of simulated calls")
	selfHosted := flag.Bool("self-hosted", false, "use self-hosted GPU rates instead of cloud APIs")
	jsonOut := flag.Bool("json", false, "emit the full report as JSON")
	seed := flag.Int64("seed", 42, "random seed for reproducibility")
	flag.Parse()

	if *iterations <= 1 {
		fmt.Fprintln(os.Stderr, "costsim: iterations must be > 1")
		os.Exit(2)
	}

	rng := rand.New(rand.NewSource(*seed))
	rep := runSimulation(rng, *iterations, *selfHosted)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "costsim: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printReport(rep)
}

func pickCallType(rng *rand.Rand) callTypeParams {
	r := rng.Float64()
	cumulative := 0.0
	for _, ct := range callTypes {
		cumulative += ct.prob
		if r <= cumulative {
			return ct
		}
	}
	return callTypes[0]
}

func simulateCall(rng *rand.Rand, outbound, selfHosted bool) callResult {
	ct := pickCallType(rng)

	durationSec := math.Min(logNormal(rng, ct.durMu, ct.durSigma), maxDurationSec)
	durationMin := durationSec / 60

	talkRatio := clamp(betaVariate(rng, talkRatioAlpha, talkRatioBeta), 0.2, 0.95)
	activeSpeechSec := durationSec * talkRatio

	sttRatio := clamp(sttRatioMean+sttRatioStd*rng.NormFloat64(), 0.2, 0.8)
	sttSec := activeSpeechSec * sttRatio

	aiSpeechSec := activeSpeechSec * (1 - sttRatio)
	ttsChars := int(aiSpeechSec * ttsCharsPerSec)

	turns := int(ct.turnsMu + ct.turnsSigma*rng.NormFloat64())
	if turns < 1 {
		turns = 1
	}
	llmInput := turns*llmInputPerTurn + systemPromptToks
	llmOutput := turns * llmOutputPerTurn

	rates := cloudRates
	if selfHosted {
		rates = selfHostedRates
	}

	telRate := rates.InboundPerMin
	if outbound {
		telRate = rates.OutboundPerMin
	}
	cogsTel := durationMin * telRate
	cogsSTT := sttSec * rates.STTPerSecond
	cogsTTS := float64(ttsChars) * rates.TTSPerCharacter
	cogsLLM := float64(llmInput)*rates.InputPerToken + float64(llmOutput)*rates.OutputPerToken
	cogsTotal := cogsTel + cogsSTT + cogsTTS + cogsLLM

	cogsPerMin := 0.0
	if durationMin > 0 {
		cogsPerMin = cogsTotal / durationMin
	}

	return callResult{
		CallType:        ct.name,
		DurationSec:     round(durationSec, 1),
		DurationMin:     round(durationMin, 3),
		STTSec:          round(sttSec, 1),
		TTSChars:        ttsChars,
		LLMInputTokens:  llmInput,
		LLMOutputTokens: llmOutput,
		COGSTelephony:   round(cogsTel, 6),
		COGSSTT:         round(cogsSTT, 6),
		COGSTTS:         round(cogsTTS, 6),
		COGSLLM:         round(cogsLLM, 6),
		COGSTotal:       round(cogsTotal, 6),
		COGSPerMin:      round(cogsPerMin, 6),
	}
}

func runSimulation(rng *rand.Rand, iterations int, selfHosted bool) report {
	results := make([]callResult, 0, iterations)
	for i := 0; i < iterations; i++ {
		outbound := rng.Float64() < outboundShare
		results = append(results, simulateCall(rng, outbound, selfHosted))
	}

	cogs := make([]float64, len(results))
	cogsPerMin := make([]float64, len(results))
	durations := make([]float64, len(results))
	var sumTel, sumSTT, sumTTS, sumLLM float64
	typeCounts := make(map[string]int)
	for i, r := range results {
		cogs[i] = r.COGSTotal
		cogsPerMin[i] = r.COGSPerMin
		durations[i] = r.DurationMin
		sumTel += r.COGSTelephony
		sumSTT += r.COGSSTT
		sumTTS += r.COGSTTS
		sumLLM += r.COGSLLM
		typeCounts[r.CallType]++
	}
	sort.Float64s(cogs)
	sort.Float64s(cogsPerMin)

	cogsStats := distribution{
		Mean:   round(mean(cogs), 6),
		Median: round(percentile(cogs, 50), 6),
		Stdev:  round(stdev(cogs), 6),
		P5:     round(percentile(cogs, 5), 6),
		P25:    round(percentile(cogs, 25), 6),
		P50:    round(percentile(cogs, 50), 6),
		P75:    round(percentile(cogs, 75), 6),
		P95:    round(percentile(cogs, 95), 6),
		P99:    round(percentile(cogs, 99), 6),
		Min:    round(cogs[0], 6),
		Max:    round(cogs[len(cogs)-1], 6),
	}
	perMinStats := distribution{
		Mean:   round(mean(cogsPerMin), 6),
		Median: round(percentile(cogsPerMin, 50), 6),
		P5:     round(percentile(cogsPerMin, 5), 6),
		P95:    round(percentile(cogsPerMin, 95), 6),
	}

	sortedDur := append([]float64(nil), durations...)
	sort.Float64s(sortedDur)
	durMean := mean(durations)

	total := sumTel + sumSTT + sumTTS + sumLLM
	composition := map[string]float64{}
	if total > 0 {
		composition["telephony_pct"] = round(sumTel/total*100, 1)
		composition["stt_pct"] = round(sumSTT/total*100, 1)
		composition["tts_pct"] = round(sumTTS/total*100, 1)
		composition["llm_pct"] = round(sumLLM/total*100, 1)
	}

	typeDist := make(map[string]float64, len(typeCounts))
	for name, n := range typeCounts {
		typeDist[name] = round(float64(n)/float64(iterations)*100, 1)
	}

	scenarios := []struct {
		plan  string
		calls int
	}{
		{"starter", 200},
		{"starter", 500},
		{"pro", 1500},
		{"pro", 3000},
		{"enterprise", 8000},
		{"enterprise", 15000},
	}

	projections := make([]monthlyProjection, 0, len(scenarios))
	for _, sc := range scenarios {
		p := plans[sc.plan]

		var totalMinutes, totalCOGS float64
		for i := 0; i < sc.calls; i++ {
			r := results[rng.Intn(len(results))]
			totalMinutes += r.DurationMin
			totalCOGS += r.COGSTotal
		}

		overageMin := math.Max(0, totalMinutes-p.IncludedMin)
		overageRev := overageMin * p.OverageRate
		totalRev := p.Fee + overageRev
		margin := totalRev - totalCOGS
		marginPct := 0.0
		if totalRev > 0 {
			marginPct = margin / totalRev * 100
		}
		perMin := 0.0
		if totalMinutes > 0 {
			perMin = totalCOGS / totalMinutes
		}

		projections = append(projections, monthlyProjection{
			Plan:            sc.plan,
			MonthlyCalls:    sc.calls,
			TotalMinutes:    round(totalMinutes, 1),
			IncludedMinutes: p.IncludedMin,
			OverageMinutes:  round(overageMin, 1),
			SubscriptionFee: p.Fee,
			OverageRevenue:  round(overageRev, 2),
			TotalRevenue:    round(totalRev, 2),
			TotalCOGS:       round(totalCOGS, 2),
			GrossMargin:     round(margin, 2),
			MarginPct:       round(marginPct, 1),
			COGSPerCall:     round(totalCOGS/float64(sc.calls), 4),
			COGSPerMin:      round(perMin, 4),
		})
	}

	avgCOGSPerMin := perMinStats.Mean
	be := make(map[string]breakEven)
	for name, p := range plans {
		if p.Fee <= 0 {
			continue
		}
		revPerMin := p.Fee / p.IncludedMin
		netPerMin := revPerMin - avgCOGSPerMin
		if netPerMin <= 0 {
			continue
		}
		overageMargin := 0.0
		if p.OverageRate > 0 {
			overageMargin = round((p.OverageRate-avgCOGSPerMin)/p.OverageRate*100, 1)
		}
		be[name] = breakEven{
			Fee:                   p.Fee,
			RevenuePerIncludedMin: round(revPerMin, 4),
			COGSPerMin:            round(avgCOGSPerMin, 4),
			NetPerMin:             round(netPerMin, 4),
			MarginOnIncluded:      round(netPerMin/revPerMin*100, 1),
			OverageMargin:         overageMargin,
		}
	}

	return report{
		Iterations:        iterations,
		SelfHosted:        selfHosted,
		COGSPerCall:       cogsStats,
		COGSPerMinute:     perMinStats,
		DurationMeanMin:   round(durMean, 2),
		DurationMedianMin: round(percentile(sortedDur, 50), 2),
		COGSComposition:   composition,
		CallTypeDist:      typeDist,
		Projections:       projections,
		BreakEven:         be,
	}
}

func printReport(r report) {
	infra := "Cloud APIs"
	if r.SelfHosted {
		infra = "Self-Hosted GPU"
	}
	fmt.Println("======================================================================")
	fmt.Println("  MONTE CARLO COST SIMULATION")
	fmt.Printf("  Iterations: %d\n", r.Iterations)
	fmt.Printf("  Infrastructure: %s\n", infra)
	fmt.Println("======================================================================")

	fmt.Println("\nPER-CALL COGS DISTRIBUTION")
	cs := r.COGSPerCall
	fmt.Printf("  Mean:    $%.4f\n", cs.Mean)
	fmt.Printf("  Median:  $%.4f\n", cs.Median)
	fmt.Printf("  P5:      $%.4f\n", cs.P5)
	fmt.Printf("  P25:     $%.4f\n", cs.P25)
	fmt.Printf("  P75:     $%.4f\n", cs.P75)
	fmt.Printf("  P95:     $%.4f\n", cs.P95)
	fmt.Printf("  P99:     $%.4f\n", cs.P99)
	fmt.Printf("  StdDev:  $%.4f\n", cs.Stdev)

	fmt.Println("\nCOGS PER MINUTE")
	cm := r.COGSPerMinute
	fmt.Printf("  Mean:    $%.4f/min\n", cm.Mean)
	fmt.Printf("  Median:  $%.4f/min\n", cm.Median)
	fmt.Printf("  P5-P95:  $%.4f - $%.4f/min\n", cm.P5, cm.P95)

	fmt.Println("\nCALL DURATION")
	fmt.Printf("  Mean:    %.1f min\n", r.DurationMeanMin)
	fmt.Printf("  Median:  %.1f min\n", r.DurationMedianMin)

	fmt.Println("\nCOGS COMPOSITION")
	fmt.Printf("  Telephony:  %.1f%%\n", r.COGSComposition["telephony_pct"])
	fmt.Printf("  STT:        %.1f%%\n", r.COGSComposition["stt_pct"])
	fmt.Printf("  TTS:        %.1f%%\n", r.COGSComposition["tts_pct"])
	fmt.Printf("  LLM:        %.1f%%\n", r.COGSComposition["llm_pct"])

	fmt.Println("\nMONTHLY PROJECTIONS")
	fmt.Printf("  %-12s %7s %8s %8s %10s %8s %8s\n", "Plan", "Calls", "Minutes", "Overage", "Revenue", "COGS", "Margin")
	for _, p := range r.Projections {
		fmt.Printf("  %-12s %7d %7.0fm %7.0fm $%9.0f $%7.0f %7.1f%%\n",
			p.Plan, p.MonthlyCalls, p.TotalMinutes, p.OverageMinutes, p.TotalRevenue, p.TotalCOGS, p.MarginPct)
	}

	fmt.Println("\nBREAK-EVEN ANALYSIS")
	names := make([]string, 0, len(r.BreakEven))
	for name := range r.BreakEven {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		be := r.BreakEven[name]
		fmt.Printf("  %s\n", name)
		fmt.Printf("    Fee: $%.0f/mo -> $%.3f/included min\n", be.Fee, be.RevenuePerIncludedMin)
		fmt.Printf("    COGS: $%.4f/min\n", be.COGSPerMin)
		fmt.Printf("    Included margin: %.1f%%\n", be.MarginOnIncluded)
		if be.OverageMargin > 0 {
			fmt.Printf("    Overage margin:  %.1f%%\n", be.OverageMargin)
		}
	}
	fmt.Println("\n  All customer metrics in minutes; no token counts exposed.")
}

func logNormal(rng *rand.Rand, mu, sigma float64) float64 {
	return math.Exp(mu + sigma*rng.NormFloat64())
}

// betaVariate samples Beta(a, b) from two gamma draws.
func betaVariate(rng *rand.Rand, a, b float64) float64 {
	x := gammaVariate(rng, a)
	y := gammaVariate(rng, b)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// gammaVariate samples Gamma(shape, 1) with the Marsaglia-Tsang method.
func gammaVariate(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaVariate(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stdev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// percentile expects sorted input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
