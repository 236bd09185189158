package harness

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Allele-frequency spectrum binning for the stats tool.
const (
	afsMinBinSize = 4
	afsBinCount   = 20
)

// ldSeps are the SNP separations at which linkage disequilibrium is summarized.
const ldSeps = "5,50,100,200,300,500,1000,2000,3000,5000,10000"

// Variables a recorded command line may refer to.
const (
	VarSimBinary   = "simBinary"
	VarStatsBinary = "statsBinary"
	VarParamFile   = "paramFN"
	VarGenMapFile  = "genMapFN"
	VarNSimsStoch  = "nsimsStoch"
)

// SampleSize sums the sample_size lines of a simulator parameter file.
// Each such line reads "sample_size <pop> <n>".
func SampleSize(paramPath string) (int, error) {
	f, err := os.Open(paramPath)
	if err != nil {
		return 0, fmt.Errorf("read parameter file: %w", err)
	}
	defer f.Close()

	total := 0
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if !strings.HasPrefix(text, "sample_size ") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return 0, fmt.Errorf("%s:%d: sample_size needs a population and a size", paramPath, line)
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return 0, fmt.Errorf("%s:%d: bad sample size: %w", paramPath, line, err)
		}
		total += n
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read parameter file: %w", err)
	}
	return total, nil
}

// AFSBins returns the allele-frequency bins passed to the stats tool: the
// singletons through 5-tons, then ranges covering the rest of the sample.
func AFSBins(total int) string {
	bin := max(afsMinBinSize, total/afsBinCount)
	bins := []string{"1", "2", "3", "4", "5"}
	for f := 6; f < total; f += bin {
		bins = append(bins, fmt.Sprintf("%d-%d", f, min(f+bin-1, total)))
	}
	return strings.Join(bins, ",")
}

// StatsCommand is the stats-tool stage of the stochastic pipeline.
func StatsCommand(total int) string {
	return joinFields("$"+VarStatsBinary, "-a", AFSBins(total), "--ld-seps", ldSeps, "-g", "10")
}

// SimCommand is the simulator invocation shared by both checks.
func SimCommand(simParams string) string {
	return joinFields("$"+VarSimBinary, "-p", "$"+VarParamFile, "-R", "$"+VarGenMapFile, "-m", simParams)
}

// ExactCommand runs nsims simulations at seed.
func ExactCommand(sim string, nsims int, seed int64) string {
	return joinFields(sim, "-n", strconv.Itoa(nsims), "--seed", strconv.FormatInt(seed, 10))
}

// StochCommand pipes many seeded simulations through the stats tool. The
// run count stays a variable so a check can use a different one.
func StochCommand(sim, stats string, seed int64) string {
	return joinFields(sim,
		"--output-sim-times", "--output-end-gens",
		"-n", "$"+VarNSimsStoch,
		"--seed", strconv.FormatInt(seed, 10),
		"|", stats)
}

var seedFlag = regexp.MustCompile(`--seed \d+`)

// ReseedCommand replaces the first --seed in line.
func ReseedCommand(line string, seed int64) string {
	done := false
	return seedFlag.ReplaceAllStringFunc(line, func(m string) string {
		if done {
			return m
		}
		done = true
		return "--seed " + strconv.FormatInt(seed, 10)
	})
}

// CapMinutes asks the simulator to stop after the given wall-clock minutes.
func CapMinutes(line string, minutes float64) string {
	if minutes <= 0 {
		return line
	}
	return strings.Replace(line, "-m ", fmt.Sprintf("-m --stop-after-minutes %f ", minutes), 1)
}

func joinFields(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
