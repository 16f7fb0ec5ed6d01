package tabs

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/caikit/caikit-huggingface-demo/pkg/datamodel"
)

func textArgs(in Input) (any, bool, error) {
	if in.Text == "" {
		return nil, false, nil
	}
	return map[string]any{"text_in": in.Text}, true, nil
}

func sentencesArgs(in Input) (any, bool, error) {
	if len(in.Sentences) == 0 {
		return nil, false, nil
	}
	return map[string]any{"sentences": in.Sentences}, true, nil
}

func emptyText() *Output {
	s := ""
	return &Output{Text: &s}
}

func emptyLabels() *Output {
	return &Output{Labels: map[string]float64{}}
}

func emptyTable() *Output {
	return &Output{Table: &Table{Headers: []string{}, Rows: [][]float64{}}}
}

func emptySimilarity() *Output {
	return &Output{Labels: map[string]float64{}, Table: &Table{Headers: []string{}, Rows: [][]float64{}}}
}

func interpretText(resp *dynamicpb.Message, _ Input) (*Output, error) {
	var out datamodel.Text
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}
	return &Output{Text: &out.Text}, nil
}

func interpretClassification(resp *dynamicpb.Message, _ Input) (*Output, error) {
	var out datamodel.ClassificationPrediction
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}
	labels := make(map[string]float64, len(out.Classes))
	for _, c := range out.Classes {
		labels[c.ClassName] = c.Confidence
	}
	return &Output{Labels: labels}, nil
}

// transpose lays out one column per embedding and one row per dimension.
// Cells past the end of a shorter vector stay zero.
func transpose(pairs []datamodel.EmbeddingsPair, headers []string) *Table {
	dims := 0
	for _, p := range pairs {
		if len(p.Output) > dims {
			dims = len(p.Output)
		}
	}

	rows := make([][]float64, dims)
	for r := range rows {
		rows[r] = make([]float64, len(pairs))
		for c, p := range pairs {
			if r < len(p.Output) {
				rows[r][c] = p.Output[r]
			}
		}
	}
	return &Table{Headers: headers, Rows: rows}
}

func interpretEmbeddings(resp *dynamicpb.Message, _ Input) (*Output, error) {
	var out datamodel.EmbeddingsResult
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}

	headers := make([]string, len(out.Output))
	for i, p := range out.Output {
		headers[i] = strconv.Itoa(int(p.Input))
	}
	return &Output{Table: transpose(out.Output, headers)}, nil
}

// interpretSimilarity scores every sentence against the source sentence,
// the pair with input 0. Indices outside the request keep an empty sentence.
func interpretSimilarity(resp *dynamicpb.Message, in Input) (*Output, error) {
	var out datamodel.EmbeddingsResult
	if err := datamodel.FromMessage(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Output) == 0 {
		return emptySimilarity(), nil
	}

	source := out.Output[0].Output
	headers := make([]string, len(out.Output))
	for i, p := range out.Output {
		sentence := ""
		if p.Input >= 0 && int(p.Input) < len(in.Sentences) {
			sentence = in.Sentences[p.Input]
		}
		if p.Input == 0 {
			headers[i] = "Source sentence: " + sentence
		} else {
			headers[i] = fmt.Sprintf("Sentence %d: %s", p.Input, sentence)
		}
	}
	for _, p := range out.Output {
		if p.Input == 0 {
			source = p.Output
			break
		}
	}
	// repeated indices must not overwrite each other's label
	headers = numbered(headers)

	labels := make(map[string]float64, len(out.Output))
	for i, p := range out.Output {
		labels[headers[i]] = cosine(source, p.Output)
	}
	return &Output{Labels: labels, Table: transpose(out.Output, headers)}, nil
}

func cosine(a []float64, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
