package codec

import (
	"errors"
	"testing"

	"envelope-rpc/message"
)

func newTestRequest() *message.Request {
	req := message.NewRequest("ArithService", "Add", []byte(`{"a":1,"b":2}`))
	req.ArgSigs = []string{"main.Args"}
	req.SetHeader("version", "^1.0.0")
	req.SetTargetAppName("calc")
	req.AddRequestProps(message.Props{
		"trace_id": message.StringValue("t-42"),
		"hops":     message.IntValue(-3),
		"sampled":  message.BoolValue(true),
		"blob":     message.BytesValue([]byte{0, 1, 2}),
		"zone":     message.MapValue(message.Props{"dc": message.StringValue("gz"), "rack": message.IntValue(7)}),
	})
	// Local-only state that must not survive encoding.
	req.SetTimeout(500).
		SetInvokeType(message.InvokeTypeFuture).
		SetInterfaceName("com.example.ArithService").
		SetSerializeType(1).
		SetSerializeFactoryType(1).
		SetMethod("handle").
		SetResponseCallback(message.CallbackFuncs{})
	return req
}

func checkRoundTrip(t *testing.T, c Codec) {
	t.Helper()
	originalReq := newTestRequest()

	data, err := c.EncodeRequest(originalReq)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	decodedReq, err := c.DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest failed: %v", err)
	}

	if decodedReq.ServiceMethod() != originalReq.ServiceMethod() {
		t.Errorf("ServiceMethod mismatch: got %s, want %s", decodedReq.ServiceMethod(), originalReq.ServiceMethod())
	}
	if len(decodedReq.Args) != 1 || string(decodedReq.Args[0]) != string(originalReq.Args[0]) {
		t.Errorf("Args mismatch: got %q", decodedReq.Args)
	}
	if len(decodedReq.ArgSigs) != 1 || decodedReq.ArgSigs[0] != "main.Args" {
		t.Errorf("ArgSigs mismatch: got %v", decodedReq.ArgSigs)
	}
	if decodedReq.Header("version") != "^1.0.0" {
		t.Errorf("Headers mismatch: got %v", decodedReq.Headers)
	}
	if name, ok := decodedReq.TargetAppName(); !ok || name != "calc" {
		t.Errorf("TargetAppName mismatch: got %q (ok=%v)", name, ok)
	}
	if !decodedReq.RequestProps().Equal(originalReq.RequestProps()) {
		t.Errorf("Props mismatch: got %v, want %v", decodedReq.RequestProps(), originalReq.RequestProps())
	}

	if _, ok := decodedReq.Timeout(); ok {
		t.Error("timeout survived encoding")
	}
	if decodedReq.InvokeType() != "" || decodedReq.InterfaceName() != "" || decodedReq.Method() != nil || decodedReq.ResponseCallback() != nil {
		t.Error("local-only slot survived encoding")
	}
	if decodedReq.SerializeType() != 0 || decodedReq.SerializeFactoryType() != 0 {
		t.Error("serializer selectors survived encoding")
	}

	originalResp := &message.Response{
		Payload: []byte(`{"Result":3}`),
		Error:   "boom",
		Props:   message.Props{"server": message.StringValue("s1")},
	}
	data, err = c.EncodeResponse(originalResp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	decodedResp, err := c.DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if string(decodedResp.Payload) != string(originalResp.Payload) || decodedResp.Error != originalResp.Error {
		t.Errorf("Response mismatch: got %+v", decodedResp)
	}
	if !decodedResp.Props.Equal(originalResp.Props) {
		t.Errorf("Response props mismatch: got %v", decodedResp.Props)
	}
}

func TestJSONCodec(t *testing.T) {
	checkRoundTrip(t, &JSONCodec{})
}

func TestBinaryCodec(t *testing.T) {
	checkRoundTrip(t, &BinaryCodec{})
}

func TestZstdCodec(t *testing.T) {
	for _, serializeType := range []byte{byte(CodecTypeJSON), byte(CodecTypeBinary)} {
		c, err := Select(FactoryZstd, serializeType)
		if err != nil {
			t.Fatal(err)
		}
		if c.Type() != CodecType(serializeType) {
			t.Fatalf("expect type %d, got %d", serializeType, c.Type())
		}
		checkRoundTrip(t, c)
	}
}

func TestAbsentFieldsStayAbsent(t *testing.T) {
	for _, c := range []Codec{&JSONCodec{}, &BinaryCodec{}} {
		data, err := c.EncodeRequest(message.NewRequest("Arith", "Add"))
		if err != nil {
			t.Fatal(err)
		}
		req, err := c.DecodeRequest(data)
		if err != nil {
			t.Fatal(err)
		}
		if req.RequestProps() != nil {
			t.Errorf("codec %d: expect absent props, got %v", c.Type(), req.RequestProps())
		}
		if _, ok := req.TargetAppName(); ok {
			t.Errorf("codec %d: expect unspecified target app", c.Type())
		}
	}
}

func TestBinaryCodecEmptyBagIsPresent(t *testing.T) {
	req := message.NewRequest("Arith", "Add")
	req.AddRequestProp("k", message.IntValue(1))
	req.RemoveRequestProp("k")

	c := &BinaryCodec{}
	data, err := c.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.DecodeRequest(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.RequestProps() == nil || len(got.RequestProps()) != 0 {
		t.Fatalf("expect empty but present bag, got %v", got.RequestProps())
	}
}

func TestNestedInvalidPropsEncodeOnEveryCodec(t *testing.T) {
	want := message.Props{"outer": message.MapValue(message.Props{"keep": message.BoolValue(true)})}
	for _, c := range []Codec{&JSONCodec{}, &BinaryCodec{}, &ZstdCodec{inner: &BinaryCodec{}}} {
		req := message.NewRequest("Arith", "Add")
		req.AddRequestProp("outer", message.MapValue(message.Props{
			"inner": {},
			"keep":  message.BoolValue(true),
		}))

		data, err := c.EncodeRequest(req)
		if err != nil {
			t.Fatalf("codec %d: EncodeRequest failed: %v", c.Type(), err)
		}
		got, err := c.DecodeRequest(data)
		if err != nil {
			t.Fatalf("codec %d: DecodeRequest failed: %v", c.Type(), err)
		}
		if !got.RequestProps().Equal(want) {
			t.Errorf("codec %d: expect %v, got %v", c.Type(), want, got.RequestProps())
		}
	}
}

func TestBinaryCodecTruncated(t *testing.T) {
	c := &BinaryCodec{}
	data, err := c.EncodeRequest(newTestRequest())
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 1, 5, len(data) - 1} {
		if _, err := c.DecodeRequest(data[:n]); err == nil {
			t.Fatalf("expect error decoding %d of %d bytes", n, len(data))
		}
	}
}

func TestSelect(t *testing.T) {
	if c, err := Select(FactoryPlain, byte(CodecTypeBinary)); err != nil || c.Type() != CodecTypeBinary {
		t.Fatalf("expect binary codec, got %v, %v", c, err)
	}
	if _, err := Select(FactoryPlain, 9); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("expect ErrUnknownCodec, got %v", err)
	}
	if _, err := Select(7, byte(CodecTypeJSON)); !errors.Is(err, ErrUnknownFactory) {
		t.Fatalf("expect ErrUnknownFactory, got %v", err)
	}

	req := message.NewRequest("Arith", "Add").SetSerializeType(byte(CodecTypeBinary)).SetSerializeFactoryType(FactoryZstd)
	c, err := ForRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*ZstdCodec); !ok {
		t.Fatalf("expect *ZstdCodec, got %T", c)
	}
}
