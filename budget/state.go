//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package budget

type budgetState int

// A tracker starts Active and transitions to Exhausted when the remaining
// budget reaches zero. The transition is irreversible within a session.
const (
	Active budgetState = iota
	Exhausted
)

var stateName = map[budgetState]string{
	Active:    "Active",
	Exhausted: "Exhausted",
}

func (s budgetState) String() string {
	return stateName[s]
}
