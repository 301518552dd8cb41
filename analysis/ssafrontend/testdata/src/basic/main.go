// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
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

package main

import "fmt"

type Box struct {
	secret string
	public string
}

type Writer interface {
	Write(s string)
}

type sinkWriter struct{}

func (sinkWriter) Write(s string) { Sink(s) } // @Sink(itf)

func Source() string { return "secret" }

func Sink(s string) { fmt.Println(s) }

func viaField() {
	b := &Box{}
	b.secret = Source() // @Source(field)
	b.public = "ok"
	Sink(b.secret) // @Sink(field)
}

func viaFunctionValue() {
	s := Source()                   // @Source(fv)
	f := func(x string) { Sink(x) } // @Sink(fv)
	f(s)
}

func viaCapture() {
	s := Source()           // @Source(capture)
	g := func() { Sink(s) } // @Sink(capture)
	g()
}

func viaInterface(w Writer) {
	w.Write(Source()) // @Source(itf)
}

func clean() {
	b := &Box{}
	b.secret = Source()
	b.public = "ok"
	Sink(b.public)
}

func main() {
	viaField()
	viaFunctionValue()
	viaCapture()
	viaInterface(sinkWriter{})
	clean()
}
