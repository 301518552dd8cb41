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

// Package ir defines the program representation consumed by the data flow engine: classes with fields and
// methods, and method bodies made of three-address statements with an explicit control flow graph.
//
// Programs are either built directly with [NewProgram] and [NewBodyBuilder], or translated from Go SSA by the
// ssafrontend package.
package ir
