// Package contracts holds the default ABIs of the bridge contracts.
// Only the events and methods the relays use are declared.
package contracts

// Token is the bridged ERC20 on the home ledger.
const Token = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[
		{"name":"owner","type":"address","indexed":true},
		{"name":"spender","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

// Custodian holds collected funds on the home ledger.
const Custodian = `[
	{"type":"event","name":"ClaimMade","anonymous":false,"inputs":[
		{"name":"policyOwner","type":"address","indexed":false},
		{"name":"claimer","type":"address","indexed":false}
	]},
	{"type":"event","name":"ClaimSuccess","anonymous":false,"inputs":[
		{"name":"policyHolder","type":"address","indexed":false}
	]},
	{"type":"function","name":"MakeTransaction","stateMutability":"nonpayable","inputs":[
		{"name":"owner","type":"address"},
		{"name":"expectedAmount","type":"uint256"},
		{"name":"rebateAmount","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"ClaimPayout","stateMutability":"nonpayable","inputs":[
		{"name":"vs","type":"uint8[]"},
		{"name":"rs","type":"bytes32[]"},
		{"name":"ss","type":"bytes32[]"},
		{"name":"message","type":"bytes"}
	],"outputs":[]}
]`

// Pool is the insurance pool contract on the foreign ledger.
const Pool = `[
	{"type":"event","name":"ClaimApproved","anonymous":false,"inputs":[
		{"name":"_policyAddr","type":"address","indexed":false},
		{"name":"_beneficiaryAddr","type":"address","indexed":false},
		{"name":"_payoutAmount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"CollectedSignatures","anonymous":false,"inputs":[
		{"name":"authorityResponsibleForRelay","type":"address","indexed":false},
		{"name":"messageHash","type":"bytes32","indexed":false}
	]},
	{"type":"function","name":"CheckTransaction","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"}
	],"outputs":[
		{"name":"expectedAmount","type":"uint256"},
		{"name":"rebateAmount","type":"uint256"}
	]},
	{"type":"function","name":"MakeTransaction","stateMutability":"nonpayable","inputs":[
		{"name":"from","type":"address"},
		{"name":"authority","type":"address"},
		{"name":"value","type":"uint256"}
	],"outputs":[]},
	{"type":"function","name":"MakeClaimPOC","stateMutability":"nonpayable","inputs":[
		{"name":"policyOwner","type":"address"},
		{"name":"claimer","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"SuccessfulClaimPayout","stateMutability":"nonpayable","inputs":[
		{"name":"policyHolder","type":"address"}
	],"outputs":[]},
	{"type":"function","name":"submitSignature","stateMutability":"nonpayable","inputs":[
		{"name":"signature","type":"bytes"},
		{"name":"message","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"requiredSignatures","stateMutability":"view","inputs":[],"outputs":[
		{"name":"","type":"uint256"}
	]},
	{"type":"function","name":"message","stateMutability":"view","inputs":[
		{"name":"hash","type":"bytes32"}
	],"outputs":[
		{"name":"","type":"bytes"}
	]},
	{"type":"function","name":"signature","stateMutability":"view","inputs":[
		{"name":"hash","type":"bytes32"},
		{"name":"index","type":"uint256"}
	],"outputs":[
		{"name":"","type":"bytes"}
	]}
]`
