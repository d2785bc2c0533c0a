package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/kruton/etamoo/pkg/ast"
	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

func init() {
	// Values are interfaces in the object graph; every concrete variant
	// must be registered for gob.
	gob.Register(value.Int(0))
	gob.Register(value.Float(0))
	gob.Register(value.Str(""))
	gob.Register(value.Obj(0))
	gob.Register(value.Err(0))
	gob.Register(value.List{})

	// AST nodes, so verb programs round-trip with the objects.
	gob.Register(&ast.Const{})
	gob.Register(&ast.Var{})
	gob.Register(&ast.PropRef{})
	gob.Register(&ast.Index{})
	gob.Register(&ast.RangeRef{})
	gob.Register(&ast.ListExpr{})
	gob.Register(&ast.Binary{})
	gob.Register(&ast.Negate{})
	gob.Register(&ast.Not{})
	gob.Register(&ast.And{})
	gob.Register(&ast.Or{})
	gob.Register(&ast.Cond{})
	gob.Register(&ast.Assign{})
	gob.Register(&ast.Scatter{})
	gob.Register(&ast.VerbCall{})
	gob.Register(&ast.BuiltinCall{})
	gob.Register(&ast.Length{})
	gob.Register(&ast.Catch{})
	gob.Register(&ast.ExprStmt{})
	gob.Register(&ast.If{})
	gob.Register(&ast.While{})
	gob.Register(&ast.ForList{})
	gob.Register(&ast.ForRange{})
	gob.Register(&ast.Fork{})
	gob.Register(&ast.Break{})
	gob.Register(&ast.Continue{})
	gob.Register(&ast.Return{})
	gob.Register(&ast.TryExcept{})
	gob.Register(&ast.TryFinally{})
}

// encodeObject serializes an Object to bytes using gob.
func encodeObject(obj *gamedb.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*gamedb.Object, error) {
	var obj gamedb.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}
