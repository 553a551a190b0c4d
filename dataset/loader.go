// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-fm/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// maxLineSize bounds a single line of a data file.
const maxLineSize = 64 * 1024 * 1024

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)
	return scanner
}

// LoadLibFMFile loads libFM format file. Each line holds a target followed by
// index:value pairs. The number of features is the largest index plus one.
func LoadLibFMFile(path string) (*Dataset, error) {
	// open file
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	// read lines
	var (
		instances []*SparseInstance
		maxIndex  = -1
		lineCount = 0
	)
	scanner := newScanner(file)
	for scanner.Scan() {
		lineCount++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		// fetch target
		target, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.NotValidf("target %q at line %d", fields[0], lineCount)
		}
		// fetch features
		indices := make([]int, 0, len(fields)-1)
		values := make([]float64, 0, len(fields)-1)
		for _, field := range fields[1:] {
			k, v, ok := strings.Cut(field, ":")
			if !ok {
				return nil, errors.NotValidf("feature %q at line %d", field, lineCount)
			}
			index, err := strconv.Atoi(k)
			if err != nil {
				return nil, errors.NotValidf("feature index %q at line %d", k, lineCount)
			}
			value, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.NotValidf("feature value %q at line %d", v, lineCount)
			}
			indices = append(indices, index)
			values = append(values, value)
		}
		instance, err := NewSparseInstance(target, indices, values)
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", lineCount)
		}
		maxIndex = max(maxIndex, instance.MaxIndex())
		instances = append(instances, instance)
	}
	// check error
	if err = scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return NewDataset(maxIndex+1, instances)
}

// LoadCSVFile loads a dense numeric table. One column is the target and the
// others, in order, become features 0..n-2. A negative targetColumn selects
// the last column. Zero cells are not stored.
func LoadCSVFile(path, sep string, header bool, targetColumn int) (*Dataset, error) {
	// open file
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	// read lines
	var (
		instances  []*SparseInstance
		numColumns = -1
	)
	err = base.ReadLines(newScanner(file), sep, func(line int, fields []string) error {
		if header && line == 0 {
			return nil
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			return nil
		}
		if numColumns < 0 {
			numColumns = len(fields)
			if numColumns < 2 {
				return errors.NotValidf("%d columns at line %d", numColumns, line+1)
			}
			if targetColumn < 0 {
				targetColumn = numColumns - 1
			} else if targetColumn >= numColumns {
				return errors.NotValidf("target column %d of %d columns", targetColumn, numColumns)
			}
		} else if len(fields) != numColumns {
			return errors.NotValidf("%d columns at line %d, expect %d", len(fields), line+1, numColumns)
		}
		var (
			target  float64
			indices = make([]int, 0, numColumns-1)
			values  = make([]float64, 0, numColumns-1)
		)
		for column, field := range fields {
			value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return errors.NotValidf("value %q at line %d", field, line+1)
			}
			if column == targetColumn {
				target = value
				continue
			}
			if value != 0 {
				index := column
				if column > targetColumn {
					index--
				}
				indices = append(indices, index)
				values = append(values, value)
			}
		}
		instance, err := NewSparseInstance(target, indices, values)
		if err != nil {
			return errors.Trace(err)
		}
		instances = append(instances, instance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewDataset(max(numColumns-1, 0), instances)
}

// Normalize returns a copy of the dataset with every feature min-max scaled to
// [0, 1]. Missing entries count as zeros. Constant features become zero. Only
// stored entries are visited, except for features whose minimum is negative:
// a missing entry of such a feature scales to a non-zero value and is added
// after the stored entries.
func (dataset *Dataset) Normalize() *Dataset {
	lower := make([]float64, dataset.numFeatures)
	upper := make([]float64, dataset.numFeatures)
	counts := make([]int, dataset.numFeatures)
	for _, instance := range dataset.instances {
		instance.ForEach(func(index int, value float64) {
			if counts[index] == 0 {
				lower[index], upper[index] = value, value
			} else {
				lower[index] = min(lower[index], value)
				upper[index] = max(upper[index], value)
			}
			counts[index]++
		})
	}
	// features whose implicit zeros scale to a non-zero value
	var shifted []int
	for i := range counts {
		// implicit zeros take part in the range
		if counts[i] < dataset.Count() {
			lower[i] = min(lower[i], 0)
			upper[i] = max(upper[i], 0)
		}
		if counts[i] < dataset.Count() && lower[i] < 0 && upper[i] > lower[i] {
			shifted = append(shifted, i)
		}
	}
	scale := func(index int, value float64) float64 {
		if upper[index] == lower[index] {
			return 0
		}
		return (value - lower[index]) / (upper[index] - lower[index])
	}
	normalized := &Dataset{
		numFeatures: dataset.numFeatures,
		instances:   make([]*SparseInstance, 0, dataset.Count()),
	}
	for _, instance := range dataset.instances {
		indices := make([]int, 0, instance.Len())
		values := make([]float64, 0, instance.Len())
		instance.ForEach(func(index int, value float64) {
			if scaled := scale(index, value); scaled != 0 {
				indices = append(indices, index)
				values = append(values, scaled)
			}
		})
		if len(shifted) > 0 {
			stored := mapset.NewThreadUnsafeSetWithSize[int](instance.Len())
			instance.ForEach(func(index int, _ float64) {
				stored.Add(index)
			})
			for _, index := range shifted {
				if !stored.Contains(index) {
					indices = append(indices, index)
					values = append(values, scale(index, 0))
				}
			}
		}
		normalized.instances = append(normalized.instances, lo.Must(NewSparseInstance(instance.Target(), indices, values)))
	}
	return normalized
}
