package consensus

import (
	"fmt"
	"reflect"

	"bftsim/execution"
	"bftsim/network"

	"github.com/hashicorp/go-msgpack/codec"
)

var (
	transactionBody  execution.Transaction
	blockBody        execution.Block
	voteBody         Vote
	blockRequestBody BlockRequest
)

// reflectedTypesMap drives payload decoding: each wire kind maps to the
// concrete body type it carries. Prevotes and precommits share the Vote body
// and are told apart by the envelope kind plus the signed phase field.
var reflectedTypesMap = map[network.Kind]reflect.Type{
	network.KindTransaction:  reflect.TypeOf(transactionBody),
	network.KindBlockHeader:  reflect.TypeOf(blockBody),
	network.KindPrevote:      reflect.TypeOf(voteBody),
	network.KindPrecommit:    reflect.TypeOf(voteBody),
	network.KindRequestBlock: reflect.TypeOf(blockRequestBody),
}

var msgpackHandle codec.MsgpackHandle

// encodePayload serializes a wire body for the transport.
func encodePayload(body interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, &msgpackHandle)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return buf, nil
}

// decodePayload deserializes a payload into a pointer to the body type
// registered for kind.
func decodePayload(kind network.Kind, payload []byte) (interface{}, error) {
	typ, ok := reflectedTypesMap[kind]
	if !ok {
		return nil, fmt.Errorf("unknown message kind %d", kind)
	}
	body := reflect.New(typ)
	dec := codec.NewDecoderBytes(payload, &msgpackHandle)
	if err := dec.Decode(body.Interface()); err != nil {
		return nil, err
	}
	return body.Interface(), nil
}
