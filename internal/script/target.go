// Package script runs delegate targets written in JavaScript. A target
// script defines handle(call); whatever it returns becomes the call result
// and anything it throws reverts the call with the thrown message.
package script

import (
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/errors"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

const (
	// EntryPoint is the function every target script must define.
	EntryPoint = "handle"

	DefaultTimeout = 2 * time.Second
	MaxScriptSize  = 64 * 1024
)

// Target is a contract whose Invoke runs a JavaScript handler.
type Target struct {
	name    string
	hash    util.Uint160
	program *goja.Program
	timeout time.Duration
	log     *logging.Logger
}

// New compiles source and checks that it defines the entry point.
func New(name, source string, timeout time.Duration, log *logging.Logger) (*Target, error) {
	if name == "" {
		return nil, errors.InvalidArgument("name", "is required")
	}
	if len(source) > MaxScriptSize {
		return nil, errors.InvalidArgument("script", fmt.Sprintf("exceeds maximum size of %d bytes", MaxScriptSize))
	}
	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, errors.InvalidArgument("script", err.Error())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.NewDefault("script")
	}

	vm := goja.New()
	if _, err := vm.RunProgram(program); err != nil {
		return nil, errors.InvalidArgument("script", err.Error())
	}
	if _, ok := goja.AssertFunction(vm.Get(EntryPoint)); !ok {
		return nil, errors.InvalidArgument("script", fmt.Sprintf("entry point '%s' is not a function", EntryPoint))
	}

	return &Target{
		name:    name,
		hash:    chain.ScriptHash([]byte(name + ":" + source)),
		program: program,
		timeout: timeout,
		log:     log,
	}, nil
}

// Name returns the configured target name.
func (t *Target) Name() string { return t.name }

// Hash implements chain.Contract.
func (t *Target) Hash() util.Uint160 { return t.hash }

// Invoke implements chain.Contract.
func (t *Target) Invoke(tx *chain.Tx, call chain.Call) ([]byte, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(t.timeout):
			vm.Interrupt("execution timeout")
		case <-done:
		}
	}()
	defer close(done)

	t.bind(vm, tx)

	if _, err := vm.RunProgram(t.program); err != nil {
		return nil, t.scriptError(err)
	}
	handle, ok := goja.AssertFunction(vm.Get(EntryPoint))
	if !ok {
		return nil, errors.Internal(fmt.Sprintf("entry point '%s' is not a function", EntryPoint), nil)
	}

	result, err := handle(goja.Undefined(), vm.ToValue(callObject{
		Method:  call.Method,
		Caller:  chain.FormatAddress(tx.Caller()),
		Origin:  chain.FormatAddress(tx.Origin()),
		Self:    chain.FormatAddress(tx.Self()),
		Value:   tx.Value().String(),
		Payload: hex.EncodeToString(call.Payload),
	}))
	if err != nil {
		return nil, t.scriptError(err)
	}
	return encodeResult(result)
}

type callObject struct {
	Method  string `json:"method"`
	Caller  string `json:"caller"`
	Origin  string `json:"origin"`
	Self    string `json:"self"`
	Value   string `json:"value"`
	Payload string `json:"payload"`
}

// bind installs the host API visible to scripts.
func (t *Target) bind(vm *goja.Runtime, tx *chain.Tx) {
	throw := func(err error) {
		panic(vm.NewGoError(err))
	}

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		t.log.WithField("target", t.name).
			WithField("tx_id", tx.ID()).
			Debug(strings.Join(parts, " "))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	storage := vm.NewObject()
	_ = storage.Set("get", func(key string) goja.Value {
		v := tx.Get(key)
		if v == nil {
			return goja.Null()
		}
		return vm.ToValue(string(v))
	})
	_ = storage.Set("put", func(key, value string) {
		tx.Put(key, []byte(value))
	})
	_ = vm.Set("storage", storage)

	_ = vm.Set("balance", func() string {
		return tx.BalanceOf(chain.NativeAsset, tx.Self()).String()
	})

	_ = vm.Set("notify", func(name string, fields map[string]string) {
		tx.Notify(name, fields)
	})

	_ = vm.Set("transfer", func(to, amount string) {
		recipient, err := chain.ParseAddress(to)
		if err != nil {
			throw(err)
		}
		n, err := chain.ArgAmount([]any{amount}, 0, "amount")
		if err != nil {
			throw(err)
		}
		if err := tx.TransferNative(recipient, n); err != nil {
			throw(err)
		}
	})

	_ = vm.Set("invoke", func(to, method string, args []any, value string) string {
		target, err := chain.ParseAddress(to)
		if err != nil {
			throw(err)
		}
		v := new(big.Int)
		if value != "" {
			if v, err = chain.ArgAmount([]any{value}, 0, "value"); err != nil {
				throw(err)
			}
		}
		result, err := tx.Call(chain.Call{To: target, Method: method, Args: args, Value: v})
		if err != nil {
			throw(err)
		}
		return hex.EncodeToString(result)
	})
}

func (t *Target) scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if stderrors.As(err, &interrupted) {
		return errors.Internal("script "+t.name+" interrupted", fmt.Errorf("%v", interrupted.Value()))
	}
	var exception *goja.Exception
	if stderrors.As(err, &exception) {
		if cause := goError(exception); cause != nil {
			return cause
		}
		return stderrors.New(exceptionMessage(exception))
	}
	return err
}

// goError recovers an error raised by a host function so that its code
// survives the trip through the script.
func goError(ex *goja.Exception) error {
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return nil
	}
	value := obj.Get("value")
	if value == nil {
		return nil
	}
	if err, ok := value.Export().(error); ok {
		return err
	}
	return nil
}

func exceptionMessage(ex *goja.Exception) string {
	if obj, ok := ex.Value().(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	return ex.Value().String()
}

// encodeResult maps a handler's return value to call result bytes: nothing
// for undefined or null, decoded bytes for "0x"-prefixed hex strings, raw
// bytes for other strings and JSON for everything else.
func encodeResult(v goja.Value) ([]byte, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	switch x := v.Export().(type) {
	case string:
		if strings.HasPrefix(x, "0x") {
			b, err := hex.DecodeString(x[2:])
			if err != nil {
				return nil, errors.InvalidArgument("result", "bad hex")
			}
			return b, nil
		}
		return []byte(x), nil
	case bool:
		return chain.EncodeBool(x), nil
	default:
		return json.Marshal(x)
	}
}
