package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const crowdfundABI = `[
  {
    "type": "function",
    "name": "createProject",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "key", "type": "string"},
      {"name": "imageUrl", "type": "string"},
      {"name": "title", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "fundingGoal", "type": "uint256"},
      {"name": "deadline", "type": "uint256"},
      {"name": "websiteUrl", "type": "string"},
      {"name": "category", "type": "string"}
    ],
    "outputs": []
  },
  {
    "type": "function",
    "name": "contribute",
    "stateMutability": "payable",
    "inputs": [
      {"name": "key", "type": "string"}
    ],
    "outputs": []
  }
]`

const (
	MethodCreateProject = "createProject"
	MethodContribute    = "contribute"
)

// ProjectCall carries the arguments of a createProject call
type ProjectCall struct {
	Key            string
	ImageURL       string
	Title          string
	Description    string
	FundingGoalWei *big.Int
	Deadline       int64
	WebsiteURL     string
	Category       string
}

var contractABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(crowdfundABI))
	if err != nil {
		panic(fmt.Sprintf("invalid crowdfund ABI: %v", err))
	}
	return parsed
}

func packCreateProject(call ProjectCall) ([]byte, error) {
	goal := call.FundingGoalWei
	if goal == nil {
		goal = new(big.Int)
	}
	if err := checkUint256(goal); err != nil {
		return nil, fmt.Errorf("funding goal: %w", err)
	}
	return contractABI.Pack(MethodCreateProject,
		call.Key,
		call.ImageURL,
		call.Title,
		call.Description,
		goal,
		big.NewInt(call.Deadline),
		call.WebsiteURL,
		call.Category,
	)
}

func packContribute(key string) ([]byte, error) {
	return contractABI.Pack(MethodContribute, key)
}
