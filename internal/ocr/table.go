package ocr

import (
	"sort"
	"strings"

	"github.com/adverant/nexus/fileprocess-worker/internal/value"
)

// ReconstructTables implements spec §4.3's TSV→table reconstruction:
// cluster word x-centers into columns, y-centers into rows, and render all
// rows as one markdown pipe table. It returns at most one TableData; words
// are not split into separate tables. Words below minConfidence are
// filtered first.
func ReconstructTables(words []Word, columnThreshold, rowThresholdRatio, minConfidence float64) []value.TableData {
	filtered := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Confidence >= minConfidence {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	rows := clusterRows(filtered, rowThresholdRatio)
	if len(rows) == 0 {
		return nil
	}
	cols := clusterColumns(filtered, columnThreshold)
	if len(cols) == 0 {
		return nil
	}

	grid := make([][]string, len(rows))
	for i := range grid {
		grid[i] = make([]string, len(cols))
	}

	for _, w := range filtered {
		xc := float64(w.Left) + float64(w.Width)/2
		yc := float64(w.Top) + float64(w.Height)/2
		r := nearestCluster(rows, yc)
		c := nearestCluster(cols, xc)
		if grid[r][c] == "" {
			grid[r][c] = w.Text
		} else {
			grid[r][c] += " " + w.Text
		}
	}

	return []value.TableData{{Text: renderMarkdownTable(grid)}}
}

// cluster is the centroid of a column/row group of word centers.
type cluster struct {
	center float64
}

// clusterColumns groups word x-centers using columnThreshold as the max
// intra-cluster gap (spec §4.3: "table_column_threshold as the max
// intra-cluster gap").
func clusterColumns(words []Word, threshold float64) []cluster {
	centers := make([]float64, len(words))
	for i, w := range words {
		centers[i] = float64(w.Left) + float64(w.Width)/2
	}
	return clusterCenters(centers, threshold)
}

// clusterRows groups word y-centers using mean_text_height * rowThresholdRatio
// as the max intra-cluster gap.
func clusterRows(words []Word, rowThresholdRatio float64) []cluster {
	var totalHeight float64
	centers := make([]float64, len(words))
	for i, w := range words {
		centers[i] = float64(w.Top) + float64(w.Height)/2
		totalHeight += float64(w.Height)
	}
	meanHeight := totalHeight / float64(len(words))
	threshold := meanHeight * rowThresholdRatio
	if threshold <= 0 {
		threshold = meanHeight
	}
	return clusterCenters(centers, threshold)
}

func clusterCenters(centers []float64, threshold float64) []cluster {
	if len(centers) == 0 {
		return nil
	}
	sorted := append([]float64(nil), centers...)
	sort.Float64s(sorted)

	var clusters []cluster
	groupStart := sorted[0]
	groupSum := sorted[0]
	groupCount := 1

	flush := func() {
		clusters = append(clusters, cluster{center: groupSum / float64(groupCount)})
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i]-sorted[i-1] <= threshold {
			groupSum += sorted[i]
			groupCount++
		} else {
			flush()
			groupStart = sorted[i]
			groupSum = sorted[i]
			groupCount = 1
			_ = groupStart
		}
	}
	flush()
	return clusters
}

func nearestCluster(clusters []cluster, value float64) int {
	best := 0
	bestDist := -1.0
	for i, c := range clusters {
		d := value - c.center
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// renderMarkdownTable renders a 2D cell grid as a markdown pipe table with a
// header separator row (spec §3: "| --- |" header separator; §8 scenario 5).
func renderMarkdownTable(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	writeRow(grid[0])
	sep := make([]string, len(grid[0]))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, row := range grid[1:] {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}
