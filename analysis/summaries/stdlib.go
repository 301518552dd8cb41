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

package summaries

import "github.com/samber/lo"

// stdPackages are the packages of the standard library
var stdPackages = lo.SliceToMap([]string{
	"archive/tar", "archive/zip", "bufio", "builtin", "bytes", "compress/bzip2", "compress/flate",
	"compress/gzip", "compress/lzw", "compress/zlib", "container/heap", "container/list", "container/ring",
	"context", "crypto", "crypto/aes", "crypto/cipher", "crypto/sha256", "crypto/tls", "crypto/x509",
	"database/sql", "debug/elf", "embed", "encoding", "encoding/asn1", "encoding/base64", "encoding/binary",
	"encoding/gob", "encoding/hex", "encoding/json", "encoding/xml", "errors", "expvar", "flag", "fmt",
	"go/ast", "go/token", "hash", "html", "html/template", "image", "image/color", "io", "io/fs", "io/ioutil",
	"log", "math", "math/big", "math/bits", "math/cmplx", "math/rand", "mime", "net", "net/http", "net/netip",
	"net/textproto", "net/url", "os", "os/exec", "path", "path/filepath", "plugin", "reflect", "regexp",
	"regexp/syntax", "sort", "strconv", "strings", "sync", "sync/atomic", "syscall", "testing", "text/template",
	"time", "unicode", "unicode/utf8", "unsafe",
}, func(p string) (string, bool) { return p, true })

// requiredBodies are library functions that call their arguments: stubbing them out would lose call edges
var requiredBodies = map[string]bool{
	"(*sync.Once).Do":     true,
	"(*sync.Once).doSlow": true,
}

// stdlibSummaries are the summaries of standard library functions, keyed by function name
var stdlibSummaries = map[string]Summary{
	// bytes
	"bytes.NewBuffer":             {[][]int{{0}}, [][]int{{0}}},
	"bytes.NewBufferString":       {[][]int{{0}}, [][]int{{0}}},
	"bytes.NewReader":             {[][]int{{0}}, [][]int{{0}}},
	"(*bytes.Buffer).Bytes":       {[][]int{{0}}, [][]int{{0}}},
	"(*bytes.Buffer).String":      {[][]int{{0}}, [][]int{{0}}},
	"(*bytes.Buffer).Write":       {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"(*bytes.Buffer).WriteByte":   {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"(*bytes.Buffer).WriteRune":   {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"(*bytes.Buffer).WriteString": {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"(*bytes.Buffer).WriteTo":     {[][]int{{0, 1}, {1}}, [][]int{{0}, {0}}},
	"(*bytes.Reader).Seek":        {[][]int{{}, {0}, {0}}, [][]int{{0}, {0}, {0}}},

	// encoding
	"encoding/json.Indent":    {[][]int{{0}, {0}, {0}, {0}}, [][]int{{}, {0}, {0}, {0}}},
	"encoding/json.Marshal":   {[][]int{{0}}, [][]int{{0}}},
	"encoding/json.Unmarshal": {[][]int{{0, 1}, {}}, [][]int{{0}, {0}}},

	// fmt
	"fmt.init":       NoDataFlowPropagation,
	"fmt.newPrinter": NoDataFlowPropagation,
	"fmt.Println":    NoDataFlowPropagation,
	"fmt.Errorf":     FormatterPropagation,
	"fmt.Fprintf":    {Args: [][]int{{0}, {0}, {0}}, Rets: [][]int{{}}},
	"fmt.Sprintf":    FormatterPropagation,
	"fmt.Sprint":     SingleVarArgPropagation,
	"fmt.Printf":     NoDataFlowPropagation,

	// io
	"io.Copy":       {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"io.CopyBuffer": {[][]int{{0}, {0, 1, 2}, {0, 2}}, [][]int{{0}, {0}, {0}}},
	"io.CopyN":      {[][]int{{0}, {0, 1}, {0, 2}}, [][]int{{0}, {0}, {0}}},
	"io.TeeReader":  {[][]int{{0, 1}, {1}}, [][]int{{0}, {}}},
	"io.ReadAll":    SingleVarArgPropagation,

	// log
	"(*log.Logger).Printf":  {[][]int{{0}, {0, 1}, {0, 2}}, [][]int{{}, {}, {}}},
	"(*log.Logger).Println": {[][]int{{0}, {0, 1}}, [][]int{{}, {}}},

	// net
	"net.Dial":                        {[][]int{{}, {}}, [][]int{{0}, {0}}},
	"net.SplitHostPort":               {[][]int{{0}}, [][]int{{0}}},
	"net/http.CanonicalHeaderKey":     {[][]int{{0}}, [][]int{{0}}},
	"(net/http.Header).Add":           {[][]int{{0}, {0, 1}, {0, 2}}, [][]int{{}, {}, {}}},
	"(net/http.Header).Del":           {[][]int{{0}, {0, 1}}, [][]int{{}, {}}},
	"(net/http.Header).Get":           {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(net/http.Header).Set":           {[][]int{{0}, {0, 1}, {0, 2}}, [][]int{{}, {}, {}}},
	"(*net/http.Request).Context":     {[][]int{{0}}, [][]int{{0}}},
	"(*net/http.Request).WithContext": {[][]int{{0}, {1}}, [][]int{{0}, {1}}},
	"(*net/url.URL).Query":            {[][]int{{0}}, [][]int{{0}}},
	"(net/url.Values).Get":            {[][]int{{0}, {1}}, [][]int{{0}, {}}},

	// os
	"(*os.File).Seek": {[][]int{{}, {0}, {0}}, [][]int{{0}, {0}, {0}}},
	"os.Create":       {[][]int{{}}, [][]int{{0}}},
	"os.Open":         {[][]int{{}}, [][]int{{0}}},
	"os.Getenv":       NoDataFlowPropagation,

	// path
	"path.Join":          SingleVarArgPropagation,
	"path.Clean":         SingleVarArgPropagation,
	"path/filepath.Join": SingleVarArgPropagation,

	// reflect
	"reflect.ValueOf":             SingleVarArgPropagation,
	"reflect.Indirect":            SingleVarArgPropagation,
	"(reflect.Value).Elem":        {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).Field":       {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(reflect.Value).FieldByName": {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(reflect.Value).IsNil":       {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).IsValid":     {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).Kind":        {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).Len":         {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).NumField":    {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).MapKeys":     {[][]int{{0}}, [][]int{{0}}},
	"(reflect.Value).Set":         {[][]int{{0}, {0, 1}}, [][]int{{}, {}}},
	"(reflect.Value).SetMapIndex": {[][]int{{0}, {0, 1}, {0, 2}}, [][]int{{}, {}, {}}},
	"(reflect.Value).Type":        {[][]int{{0}}, [][]int{{0}}},

	// regexp
	"regexp.MatchString":                  {[][]int{}, [][]int{{0}, {0}}},
	"regexp.MatchReader":                  {[][]int{}, [][]int{{0}, {0}}},
	"(*regexp.Regexp).MatchString":        {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(*regexp.Regexp).FindStringSubmatch": {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(*regexp.Regexp).ReplaceAllString":   {[][]int{{0}, {1}, {2}}, [][]int{{0}, {0}, {0}}},

	// sort
	"sort.Strings": {[][]int{{0}}, [][]int{{}}},

	// strconv
	"strconv.Itoa":       {[][]int{{0}}, [][]int{{0}}},
	"strconv.FormatInt":  {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strconv.ParseBool":  {[][]int{{0}}, [][]int{{0}}},
	"strconv.ParseInt":   {[][]int{{0}, {1}, {2}}, [][]int{{0}, {0}, {0}}},
	"strconv.ParseFloat": {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strconv.Atoi":       {[][]int{{0}}, [][]int{{0}}},
	"strconv.Quote":      {[][]int{{0}}, [][]int{{0}}},
	"strconv.Unquote":    {[][]int{{0}}, [][]int{{0}}},

	// strings
	"strings.Contains":               {[][]int{{}, {}}, [][]int{{0}, {0}}},
	"strings.Count":                  {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.EqualFold":              {[][]int{{}, {}}, [][]int{{0}, {0}}},
	"strings.HasPrefix":              {[][]int{{}, {}}, [][]int{{0}, {0}}},
	"strings.HasSuffix":              {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.Index":                  {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.IndexAny":               {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.IndexByte":              {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.Join":                   {[][]int{{0}, {1}}, [][]int{{0}, {1}}},
	"strings.LastIndex":              {[][]int{{}, {}}, [][]int{{0}, {0}}},
	"strings.NewReader":              {[][]int{{}}, [][]int{{0}}},
	"strings.Replace":                {[][]int{{0}, {1}, {2}, {3}}, [][]int{{0}, {0}, {0}, {}}},
	"strings.ReplaceAll":             {[][]int{{0}, {1}, {2}}, [][]int{{0}, {0}, {0}}},
	"strings.SplitN":                 {[][]int{{0}, {1}, {2}}, [][]int{{0}, {0}, {}}},
	"strings.Split":                  {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.TrimFunc":               {[][]int{{}, {}}, [][]int{{0}, {}}},
	"strings.TrimPrefix":             {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.TrimRight":              {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"strings.ToLower":                {[][]int{{0}}, [][]int{{0}}},
	"strings.ToUpper":                {[][]int{{0}}, [][]int{{0}}},
	"strings.TrimSpace":              {[][]int{{0}}, [][]int{{0}}},
	"(*strings.Builder).WriteString": {[][]int{{0}, {0, 1}}, [][]int{{0}, {0}}},
	"(*strings.Builder).String":      {[][]int{{0}}, [][]int{{0}}},
	"(*strings.Reader).Len":          {[][]int{{}}, [][]int{{0}}},
	"(*strings.Reader).Read":         {[][]int{{1}, {}}, [][]int{{0}, {}}},
	"(*strings.Reader).ReadAt":       {[][]int{{1}, {}, {}}, [][]int{{0}, {}, {0}}},
	"(*strings.Reader).ReadByte":     {[][]int{{}}, [][]int{{0}}},
	"(*strings.Reader).ReadRune":     {[][]int{{}}, [][]int{{0}}},
	"(*strings.Reader).Seek":         {[][]int{{}, {0}, {0}}, [][]int{{0}, {0}, {0}}},

	// sync
	"sync/atomic.StoreInt32":     {[][]int{{0}, {0, 1}}, [][]int{{}}},
	"sync/atomic.StoreUint32":    {[][]int{{0}, {0, 1}}, [][]int{{}}},
	"sync/atomic.StoreUint64":    {[][]int{{0}, {0, 1}}, [][]int{{}}},
	"(*sync/atomic.Value).Load":  {[][]int{{0}}, [][]int{{0}}},
	"(*sync/atomic.Value).Store": {[][]int{{0}, {0, 1}}, [][]int{{}}},
	"(*sync/atomic.Value).Swap":  {[][]int{{0}, {0, 1}}, [][]int{{0}, {}}},
	"(*sync.Mutex).Unlock":       NoDataFlowPropagation,
	"(*sync.Mutex).Lock":         NoDataFlowPropagation,
	"(*sync.RWMutex).Lock":       NoDataFlowPropagation,
	"(*sync.RWMutex).RLock":      NoDataFlowPropagation,
	"(*sync.RWMutex).RLocker":    {[][]int{{}}, [][]int{{0}}},
	"(*sync.RWMutex).RUnlock":    NoDataFlowPropagation,
	"(*sync.RWMutex).TryLock":    {[][]int{{}}, [][]int{{0}}},
	"(*sync.RWMutex).Unlock":     NoDataFlowPropagation,
	"(*sync.WaitGroup).Add":      NoDataFlowPropagation,
	"(*sync.WaitGroup).Done":     NoDataFlowPropagation,
	"(*sync.WaitGroup).Wait":     NoDataFlowPropagation,

	// time
	"time.Parse":         {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
	"(time.Time).UTC":    SingleVarArgPropagation,
	"(time.Time).Format": {[][]int{{0}, {1}}, [][]int{{0}, {0}}},
}

// otherSummaries are the summaries of functions of common modules outside the standard library
var otherSummaries = map[string]Summary{
	"gopkg.in/yaml.v2.yaml_parser_scan_flow_scalar":  NoDataFlowPropagation,
	"gopkg.in/yaml.v3.yaml_emitter_analyze_scalar":   NoDataFlowPropagation,
	"gopkg.in/yaml.v3.yaml_parser_scan_block_scalar": NoDataFlowPropagation,
	"gopkg.in/yaml.v3.Marshal":                       SingleVarArgPropagation,
	"gopkg.in/yaml.v3.Unmarshal":                     {[][]int{{0, 1}, {}}, [][]int{{0}, {0}}},
	"github.com/aws/aws-sdk-go/aws.mergeInConfig":    NoDataFlowPropagation,
	"github.com/aws/aws-sdk-go/aws.StringValue":      SingleVarArgPropagation,
	"github.com/aws/aws-sdk-go/aws.String":           SingleVarArgPropagation,
}
